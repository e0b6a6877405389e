package handler

import (
	"net/http"
	"strings"

	"brandkit/internal/gateway/entity"
)

// HandleRunStep executes one wizard step for a session.
func (h *KBHandler) HandleRunStep(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var in struct {
		SessionID string `json:"session_id"`
		Step      string `json:"step"`
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

	res, err := h.ctrl.RunStep(r.Context(), sessionID, step)
	if err != nil {
		writeFault(w, err)
		return
	}

	body := map[string]any{
		"session_id": res.Session.ID.String(),
		"step":       res.Session.Step,
	}
	if res.Guide != nil {
		body["guide"] = viewGuide(*res.Guide)
	} else {
		body["document"] = viewDocument(res.Document)
		citations := res.Content.Citations
		if citations == nil {
			citations = []string{}
		}
		body["citations"] = citations
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleApproveStep marks a step's current document approved.
func (h *KBHandler) HandleApproveStep(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var in struct {
		SessionID string `json:"session_id"`
		Step      string `json:"step"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	sessionID := entity.NormalizeSessionID(in.SessionID)
	if sessionID.IsZero() || strings.TrimSpace(in.Step) == "" {
		http.Error(w, "session_id and step are required", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.ApproveStep(r.Context(), sessionID, strings.TrimSpace(in.Step)); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
