package handler

import (
	"net/http"

	"brandkit/internal/gateway/entity"
	"brandkit/internal/pipeline"
)

// HandleVisionAnalyse runs the vision provider over a session's eligible
// images and returns the resulting visual guide.
func (h *KBHandler) HandleVisionAnalyse(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var in struct {
		SessionID    string   `json:"session_id"`
		ImageURLs    []string `json:"image_urls"`
		Locale       string   `json:"locale"`
		BrandContext string   `json:"brand_context"`
		Reanalyze    bool     `json:"reanalyze"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	sessionID := entity.NormalizeSessionID(in.SessionID)
	if sessionID.IsZero() {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	guide, err := h.ctrl.AnalyzeVision(r.Context(), pipeline.VisionInput{
		SessionID:    sessionID,
		ImageURLs:    in.ImageURLs,
		Locale:       in.Locale,
		BrandContext: in.BrandContext,
		Reanalyze:    in.Reanalyze,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guide": viewGuide(guide),
	})
}

// HandleVisualGuide returns the session's stored visual guide.
func (h *KBHandler) HandleVisualGuide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := entity.NormalizeSessionID(r.URL.Query().Get("session_id"))
	if sessionID.IsZero() {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	guide, err := h.ctrl.VisualGuide(r.Context(), sessionID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guide": viewGuide(guide),
	})
}

// HandleGenerateTestImages produces up to four test images from the base
// prompt and stores them against the session.
func (h *KBHandler) HandleGenerateTestImages(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var in struct {
		SessionID  string `json:"session_id"`
		BasePrompt string `json:"base_prompt"`
		Negative   string `json:"negative_prompt"`
		Count      int    `json:"count"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	sessionID := entity.NormalizeSessionID(in.SessionID)
	if sessionID.IsZero() {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if in.Count == 0 {
		in.Count = 1
	}

	urls, err := h.ctrl.GenerateTestImages(r.Context(), sessionID, in.BasePrompt, in.Negative, in.Count)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"image_urls": urls,
	})
}
