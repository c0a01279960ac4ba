package domain

import "time"

// AgentConfig is the per-tenant resolved generation configuration. A row can
// exist at organization, vertical, or global scope; resolution walks that
// chain and overlays the first match onto the compiled-in defaults.
type AgentConfig struct {
	ChunkModel       string
	FullDocModel     string
	EmbeddingModel   string
	SimilarityFloor  float32
	MatchCount       int
	MemoryThreshold  float32
	MemoryTrustFloor int
	MemoryLimit      int
	Temperature      float32
	MaxTokens        int
	MaxContextChars  int
	PageLimit        int
	CacheTTL         time.Duration
	FileTTL          time.Duration
	BoostFactor      float32
	BasePrompt       string
	ConversationIdle time.Duration
	RecentTurnLimit  int
}

// Config scope tiers, in resolution priority order.
const (
	ConfigScopeOrg      = "org"
	ConfigScopeVertical = "vertical"
	ConfigScopeGlobal   = "global"
)

// DefaultAgentConfig returns the compiled-in configuration used when no
// stored row matches any scope.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ChunkModel:       "gpt-4o-mini",
		FullDocModel:     "gemini-2.0-flash",
		EmbeddingModel:   "text-embedding-ada-002",
		SimilarityFloor:  0.35,
		MatchCount:       20,
		MemoryThreshold:  0.92,
		MemoryTrustFloor: 3,
		MemoryLimit:      3,
		Temperature:      0.3,
		MaxTokens:        2048,
		MaxContextChars:  24000,
		PageLimit:        500,
		CacheTTL:         30 * time.Minute,
		FileTTL:          40 * time.Hour,
		BoostFactor:      1.5,
		ConversationIdle: 45 * time.Minute,
		RecentTurnLimit:  10,
	}
}
