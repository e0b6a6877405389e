package server

import (
	"net/http"

	"brandkit/internal/gateway/handler"
	"brandkit/internal/gateway/middleware"
)

func NewMux(kb *handler.KBHandler) http.Handler {
	mux := http.NewServeMux()

	// Wizard pipeline
	mux.HandleFunc("/api/run-step", kb.HandleRunStep)
	mux.HandleFunc("/api/approve-step", kb.HandleApproveStep)
	mux.HandleFunc("/api/chat-edit", kb.HandleChatEdit)
	mux.HandleFunc("/api/vision-analyse", kb.HandleVisionAnalyse)
	mux.HandleFunc("/api/visual-guide", kb.HandleVisualGuide)
	mux.HandleFunc("/api/generate-test-images", kb.HandleGenerateTestImages)

	// Sessions & chat
	mux.HandleFunc("/api/sessions", kb.HandleSessions)
	mux.HandleFunc("/api/chat-history", kb.HandleChatHistory)
	mux.HandleFunc("/ws/chat", kb.HandleChatWS)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return middleware.CORS(mux)
}
