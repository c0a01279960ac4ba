package domain

import (
	"strings"
	"time"
)

// GenerationMode selects the strategy used to answer a question.
type GenerationMode string

const (
	// ModeChunks answers from retrieved passages only.
	ModeChunks GenerationMode = "chunks"
	// ModeGemini answers from entire source files via a provider-side context cache.
	ModeGemini GenerationMode = "gemini"
	// ModeAuto lets the mode selector decide; never persisted or exposed downstream.
	ModeAuto GenerationMode = "auto"
	// ModeMemory marks a turn served from the QA memory, bypassing generation.
	ModeMemory GenerationMode = "memory"
)

// ParseGenerationMode validates a requested mode, defaulting empty input to auto.
func ParseGenerationMode(s string) (GenerationMode, error) {
	switch GenerationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeAuto, nil
	case ModeChunks:
		return ModeChunks, nil
	case ModeGemini:
		return ModeGemini, nil
	case ModeAuto:
		return ModeAuto, nil
	default:
		return "", ErrInvalidGenerationMode
	}
}

// Conversation groups the turns of one session window for a tenant-scoped user.
type Conversation struct {
	ID            string
	OrgID         string
	AppID         string
	ProjectID     string
	UserID        string
	Summary       string
	FirstMessage  string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// IdleExpired reports whether the conversation's session window has lapsed.
func (c *Conversation) IdleExpired(now time.Time, idle time.Duration) bool {
	if c.LastMessageAt.IsZero() {
		return false
	}
	return now.Sub(c.LastMessageAt) > idle
}

// MessageRole identifies the author of a turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one append-only turn owned by exactly one conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	Sources        []SourceRef
	Mode           GenerationMode
	DurationMS     int64
	CreatedAt      time.Time
}

// SourceRef is one user-facing attribution entry on an assistant turn.
type SourceRef struct {
	FileID      string  `json:"file_id,omitempty"`
	Name        string  `json:"name"`
	Layer       Layer   `json:"layer,omitempty"`
	Pages       int     `json:"pages,omitempty"`
	Similarity  float32 `json:"similarity,omitempty"`
	SourceType  string  `json:"source_type,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
}
