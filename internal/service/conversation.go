package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/docsage-ai/docsage/internal/domain"
)

// ConversationRepositoryInterface defines the repository interface for
// conversation persistence.
type ConversationRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	FindLatest(ctx context.Context, userID, orgID, projectID string) (*domain.Conversation, error)
	Create(ctx context.Context, conv *domain.Conversation) error
	AppendMessage(ctx context.Context, msg *domain.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
}

// UUIDGenerator generates unique identifiers
type UUIDGenerator interface {
	NewID() string
}

// DefaultUUIDGenerator generates real UUIDs
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewID() string {
	return uuid.New().String()
}

// ConversationStore resolves the active conversation for a request and
// persists turns around generation.
type ConversationStore struct {
	repo ConversationRepositoryInterface
	ids  UUIDGenerator
	now  func() time.Time
}

// NewConversationStore creates a new ConversationStore instance
func NewConversationStore(repo ConversationRepositoryInterface) *ConversationStore {
	return &ConversationStore{repo: repo, ids: &DefaultUUIDGenerator{}, now: time.Now}
}

// Resolve returns the conversation this request belongs to. The most recent
// conversation for the scope is continued while it is inside the idle
// window; otherwise a fresh conversation is created. The returned bool
// reports whether a new conversation was started.
func (s *ConversationStore) Resolve(ctx context.Context, req *AskRequest, idle time.Duration) (*domain.Conversation, bool, error) {
	latest, err := s.repo.FindLatest(ctx, req.UserID, req.OrgID, req.ProjectID)
	if err != nil {
		return nil, false, err
	}
	if latest != nil && !latest.IdleExpired(s.now(), idle) {
		return latest, false, nil
	}

	conv := &domain.Conversation{
		ID:        s.ids.NewID(),
		OrgID:     req.OrgID,
		AppID:     req.AppID,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// AppendUserTurn records the incoming question before any processing, so
// the question survives even when the pipeline fails later. Best effort.
func (s *ConversationStore) AppendUserTurn(ctx context.Context, conversationID, content string) {
	err := s.repo.AppendMessage(ctx, &domain.Message{
		ID:             s.ids.NewID(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		CreatedAt:      s.now(),
	})
	if err != nil {
		log.Printf("user turn persist failed for conversation %s: %v", conversationID, err)
	}
}

// AppendAssistantTurn records the completed answer with its attribution
// and timing. Best effort: the client already has the streamed answer.
func (s *ConversationStore) AppendAssistantTurn(ctx context.Context, conversationID, content string, sources []domain.SourceRef, mode domain.GenerationMode, duration time.Duration) {
	err := s.repo.AppendMessage(ctx, &domain.Message{
		ID:             s.ids.NewID(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        content,
		Sources:        sources,
		Mode:           mode,
		DurationMS:     duration.Milliseconds(),
		CreatedAt:      s.now(),
	})
	if err != nil {
		log.Printf("assistant turn persist failed for conversation %s: %v", conversationID, err)
	}
}

// History returns recent prior turns for prompting, most recent first. The
// current question was already persisted as the newest turn, so it is
// stripped again here. Failures degrade to an empty history.
func (s *ConversationStore) History(ctx context.Context, conversationID, currentQuery string, limit int) []*domain.Message {
	msgs, err := s.repo.RecentMessages(ctx, conversationID, limit+1)
	if err != nil {
		log.Printf("history load failed for conversation %s: %v", conversationID, err)
		return nil
	}
	if len(msgs) > 0 && msgs[0].Role == domain.RoleUser && msgs[0].Content == currentQuery {
		msgs = msgs[1:]
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

// Messages returns a conversation's stored turns, most recent first.
func (s *ConversationStore) Messages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	if _, err := s.repo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.RecentMessages(ctx, conversationID, limit)
}
