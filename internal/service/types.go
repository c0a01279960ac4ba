package service

import (
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// AskRequest carries a single question through the answer pipeline.
type AskRequest struct {
	Query          string
	RewrittenQuery string
	Intent         string
	UserID         string
	OrgID          string
	ProjectID      string
	AppID          string
	Mode           domain.GenerationMode
	IncludeApp     bool
	IncludeOrg     bool
	IncludeProject bool
	IncludeUser    bool
	SourceTypes    []string
	BoostFileIDs   []string
}

// Validate checks the minimal fields required to process a request.
func (r *AskRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return domain.ErrMissingQuery
	}
	if strings.TrimSpace(r.UserID) == "" {
		return domain.ErrMissingUserID
	}
	return nil
}

// EffectiveQuery returns the rewritten query when present, otherwise the
// original. Retrieval and memory matching use this; persisted turns keep
// the original wording.
func (r *AskRequest) EffectiveQuery() string {
	if q := strings.TrimSpace(r.RewrittenQuery); q != "" {
		return q
	}
	return r.Query
}

// AnswerResult summarizes a completed answer for the trailing sources event.
type AnswerResult struct {
	ConversationID string                `json:"conversation_id"`
	Mode           domain.GenerationMode `json:"mode"`
	OverrideReason string                `json:"override_reason,omitempty"`
	Sources        []domain.SourceRef    `json:"sources"`
	ChunkCount     int                   `json:"chunk_count"`
	FileCount      int                   `json:"file_count"`
	CacheReused    bool                  `json:"cache_reused,omitempty"`
	DurationMS     int64                 `json:"duration_ms"`
}

// StreamEmitter receives pipeline progress, answer tokens and the final
// result. The HTTP layer adapts this onto an SSE stream.
type StreamEmitter interface {
	Step(label string) error
	Token(text string) error
	Sources(result *AnswerResult) error
	Error(message string) error
	Done() error
}
