package handler

import (
	"net/http"
	"strings"

	"brandkit/internal/gateway/entity"
)

// HandleChatEdit replaces a step document's content with a user-authored
// revision. The wizard step pointer is never touched here.
func (h *KBHandler) HandleChatEdit(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var in struct {
		SessionID      string `json:"session_id"`
		Step           string `json:"step"`
		UpdatedContent string `json:"updated_content"`
		Reason         string `json:"reason"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	sessionID := entity.NormalizeSessionID(in.SessionID)
	step := strings.TrimSpace(in.Step)
	if sessionID.IsZero() || step == "" {
		http.Error(w, "session_id and step are required", http.StatusBadRequest)
		return
	}

	doc, err := h.ctrl.ApplyChatEdit(r.Context(), sessionID, step, in.UpdatedContent, strings.TrimSpace(in.Reason))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": viewDocument(doc),
	})
}
