package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docsage-ai/docsage/internal/api"
	"github.com/docsage-ai/docsage/internal/api/handlers"
	"github.com/docsage-ai/docsage/internal/api/middleware"
)

type RouterConfig struct {
	AskHandler          *handlers.AskHandler
	ConversationHandler *handlers.ConversationHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/ask", cfg.AskHandler.Ask)
	r.Get("/conversations/{id}/messages", cfg.ConversationHandler.Messages)

	return r
}
