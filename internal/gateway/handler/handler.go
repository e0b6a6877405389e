package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"brandkit/internal/gateway/entity"
	"brandkit/internal/pipeline"
)

// SessionStore is the handler-level persistence surface: the pipeline's
// Store plus the session CRUD the API exposes directly.
type SessionStore interface {
	pipeline.Store
	CreateSession(ctx context.Context, sess entity.Session) (entity.Session, error)
	ListChatMessages(ctx context.Context, id entity.SessionID, limit int) ([]entity.ChatMessage, error)
}

// KBHandler serves the knowledge-base wizard API.
type KBHandler struct {
	ctrl  *pipeline.Controller
	store SessionStore
}

func NewKBHandler(ctrl *pipeline.Controller, store SessionStore) *KBHandler {
	return &KBHandler{ctrl: ctrl, store: store}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("handler: encode response: %v", err)
	}
}

// writeFault maps a pipeline fault kind to its HTTP status. Validation and
// missing-context are caller mistakes; schema violations and empty content
// are unprocessable provider output; an exhausted provider is a bad
// upstream.
func writeFault(w http.ResponseWriter, err error) {
	kind := pipeline.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case pipeline.KindValidation, pipeline.KindMissingContext:
		status = http.StatusBadRequest
	case pipeline.KindSchemaViolation, pipeline.KindEmptyContent:
		status = http.StatusUnprocessableEntity
	case pipeline.KindProviderExhausted, pipeline.KindProviderTransient:
		status = http.StatusBadGateway
	}
	if kind == "" {
		kind = "internal_error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type documentView struct {
	ID      int64           `json:"id"`
	DocType string          `json:"doc_type"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Status  string          `json:"status"`
}

func viewDocument(d entity.Document) documentView {
	return documentView{
		ID:      d.ID,
		DocType: d.DocType,
		Title:   d.Title,
		Content: d.Content,
		Payload: d.Payload,
		Status:  string(d.Status),
	}
}

type guideView struct {
	StyleDirection string   `json:"style_direction"`
	Palette        []string `json:"palette"`
	Imagery        []string `json:"imagery"`
	ProducerNotes  string   `json:"producer_notes"`
	Summary        string   `json:"summary"`
}

func viewGuide(g entity.VisualGuide) guideView {
	return guideView{
		StyleDirection: g.StyleDirection,
		Palette:        g.Palette,
		Imagery:        g.Imagery,
		ProducerNotes:  g.ProducerNotes,
		Summary:        g.Summary,
	}
}
