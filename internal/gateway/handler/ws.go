package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"brandkit/internal/gateway/entity"
	"brandkit/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser origins are already vetted by the CORS middleware; the
	// upgrade itself accepts any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// chatInbound is one client frame on the chat channel.
type chatInbound struct {
	Type    string `json:"type"` // "message" | "edit"
	Step    string `json:"step,omitempty"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type chatOutbound struct {
	Type     string        `json:"type"` // "ack" | "document" | "error"
	Document *documentView `json:"document,omitempty"`
	Error    string        `json:"error,omitempty"`
	Kind     string        `json:"kind,omitempty"`
}

// HandleChatWS upgrades to a websocket chat channel for one session. Edits
// arriving on the channel go through the same path as POST /api/chat-edit.
func (h *KBHandler) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := entity.NormalizeSessionID(r.URL.Query().Get("session_id"))
	if sessionID.IsZero() {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	for {
		var in chatInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			return
		}
		out := h.handleChatFrame(r.Context(), sessionID, in)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("ws: write: %v", err)
			return
		}
	}
}

func (h *KBHandler) handleChatFrame(ctx context.Context, sessionID entity.SessionID, in chatInbound) chatOutbound {
	switch strings.TrimSpace(in.Type) {
	case "message":
		if strings.TrimSpace(in.Content) == "" {
			return chatOutbound{Type: "error", Error: "content is required", Kind: string(pipeline.KindValidation)}
		}
		if _, err := h.ctrl.RecordChat(ctx, sessionID, entity.ChatRoleUser, in.Content); err != nil {
			return faultFrame(err)
		}
		return chatOutbound{Type: "ack"}
	case "edit":
		doc, err := h.ctrl.ApplyChatEdit(ctx, sessionID, strings.TrimSpace(in.Step), in.Content, strings.TrimSpace(in.Reason))
		if err != nil {
			return faultFrame(err)
		}
		view := viewDocument(doc)
		return chatOutbound{Type: "document", Document: &view}
	default:
		return chatOutbound{Type: "error", Error: "unknown frame type", Kind: string(pipeline.KindValidation)}
	}
}

func faultFrame(err error) chatOutbound {
	return chatOutbound{Type: "error", Error: err.Error(), Kind: string(pipeline.KindOf(err))}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// WriteControl is safe alongside the reply writes on the
			// request goroutine.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
