package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docsage-ai/docsage/internal/api"
	"github.com/docsage-ai/docsage/internal/domain"
)

const defaultMessageLimit = 50

// ConversationReader loads stored conversation turns.
type ConversationReader interface {
	Messages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
}

// ConversationHandler serves conversation history reads.
type ConversationHandler struct {
	svc ConversationReader
}

// NewConversationHandler creates a new ConversationHandler instance
func NewConversationHandler(svc ConversationReader) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// MessageResponse is one stored turn as returned to clients.
type MessageResponse struct {
	ID         string             `json:"id"`
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	Sources    []domain.SourceRef `json:"sources,omitempty"`
	Mode       string             `json:"mode,omitempty"`
	DurationMS int64              `json:"duration_ms,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Messages handles GET /conversations/{id}/messages, most recent first.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	msgs, err := h.svc.Messages(r.Context(), id, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &MessageResponse{
			ID:         m.ID,
			Role:       string(m.Role),
			Content:    m.Content,
			Sources:    m.Sources,
			Mode:       string(m.Mode),
			DurationMS: m.DurationMS,
			CreatedAt:  m.CreatedAt,
		})
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"messages": out})
}
