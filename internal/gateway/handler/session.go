package handler

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"brandkit/internal/gateway/entity"
)

func newSessionID() entity.SessionID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return entity.SessionID(strconv.FormatInt(time.Now().UnixNano(), 36))
	}
	return entity.SessionID("kb-" + hex.EncodeToString(b[:]))
}

// HandleSessions creates a session (POST) or reads one (GET ?session_id=).
func (h *KBHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSession(w, r)
	case http.MethodGet:
		h.getSession(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *KBHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID  string `json:"user_id"`
		Locale  string `json:"locale"`
		Subject string `json:"subject"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Subject) == "" {
		http.Error(w, "subject is required", http.StatusBadRequest)
		return
	}
	userID := entity.NormalizeUserID(in.UserID)
	if userID.IsZero() {
		userID = entity.DemoUserID
	}

	sess, err := h.store.CreateSession(r.Context(), entity.Session{
		ID:      newSessionID(),
		UserID:  userID,
		Locale:  strings.TrimSpace(in.Locale),
		Subject: strings.TrimSpace(in.Subject),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, viewSession(sess))
}

func (h *KBHandler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := entity.NormalizeSessionID(r.URL.Query().Get("session_id"))
	if sessionID.IsZero() {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

// HandleChatHistory returns the session's chat log, oldest first.
func (h *KBHandler) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := entity.NormalizeSessionID(r.URL.Query().Get("session_id"))
	if sessionID.IsZero() {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	msgs, err := h.store.ListChatMessages(r.Context(), sessionID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"role":       string(m.Role),
			"content":    m.Content,
			"created_at": m.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID.String(),
		"messages":   out,
	})
}

func viewSession(s entity.Session) map[string]any {
	return map[string]any{
		"session_id": s.ID.String(),
		"user_id":    s.UserID.String(),
		"locale":     s.Locale,
		"step":       s.Step,
		"subject":    s.Subject,
	}
}
