package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository persists conversations and their append-only turns.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// GetByID fetches one conversation.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, org_id, app_id, project_id, user_id, summary, first_message, last_message_at, created_at
		 FROM conversations WHERE id = $1`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	return conv, err
}

// FindLatest returns the most recent conversation for a tenant-scoped user,
// or nil when none exists. The caller decides whether the idle window has
// lapsed and a fresh conversation is needed.
func (r *ConversationRepository) FindLatest(ctx context.Context, userID, orgID, projectID string) (*domain.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, org_id, app_id, project_id, user_id, summary, first_message, last_message_at, created_at
		 FROM conversations
		 WHERE user_id = $1 AND org_id = $2 AND project_id = $3
		 ORDER BY last_message_at DESC
		 LIMIT 1`,
		userID, orgID, projectID)

	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

// Create inserts a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, org_id, app_id, project_id, user_id, summary, first_message, last_message_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		conv.ID, conv.OrgID, conv.AppID, conv.ProjectID, conv.UserID,
		conv.Summary, conv.FirstMessage, conv.LastMessageAt, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// AppendMessage inserts a turn and bumps the conversation's activity clock.
// The first user turn also becomes the conversation's first_message.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	var sources []byte
	if msg.Sources != nil {
		var err error
		sources, err = json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("failed to encode sources: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, sources, mode, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, sources,
		string(msg.Mode), msg.DurationMS, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE conversations
		 SET last_message_at = $2,
		     first_message = CASE WHEN first_message = '' AND $3 = 'user' THEN $4 ELSE first_message END
		 WHERE id = $1`,
		msg.ConversationID, msg.CreatedAt, string(msg.Role), msg.Content)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit turns, most recent first.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, sources, mode, duration_ms, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var (
			msg     domain.Message
			role    string
			mode    string
			sources []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &sources, &mode, &msg.DurationMS, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = domain.MessageRole(role)
		msg.Mode = domain.GenerationMode(mode)
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode sources: %w", err)
			}
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// UpdateSummary replaces the conversation's running summary.
func (r *ConversationRepository) UpdateSummary(ctx context.Context, conversationID, summary string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET summary = $2 WHERE id = $1`,
		conversationID, summary)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// ListNeedingSummary returns active conversations that have accumulated at
// least minMessages turns since their summary was last refreshed. Used by
// the background summary worker.
func (r *ConversationRepository) ListNeedingSummary(ctx context.Context, minMessages, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.org_id, c.app_id, c.project_id, c.user_id, c.summary, c.first_message, c.last_message_at, c.created_at
		 FROM conversations c
		 WHERE (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) >= $1
		   AND c.last_message_at > now() - interval '1 day'
		 ORDER BY c.last_message_at DESC
		 LIMIT $2`,
		minMessages, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := row.Scan(&conv.ID, &conv.OrgID, &conv.AppID, &conv.ProjectID, &conv.UserID,
		&conv.Summary, &conv.FirstMessage, &conv.LastMessageAt, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Touch is used by tests and the summary worker to adjust activity clocks.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`,
		conversationID, at)
	return err
}
