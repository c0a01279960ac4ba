package repository

import (
	"context"
	"errors"
	"time"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgentConfigRepository resolves per-tenant generation configuration through
// an ordered scope chain: org-specific, then tenant-vertical, then global.
// The first stored row that matches wins, overlaid onto compiled defaults.
type AgentConfigRepository struct {
	pool *pgxpool.Pool
}

func NewAgentConfigRepository(pool *pgxpool.Pool) *AgentConfigRepository {
	return &AgentConfigRepository{pool: pool}
}

// configRow mirrors agent_configs with nullable overrides.
type configRow struct {
	ChunkModel       *string
	FullDocModel     *string
	EmbeddingModel   *string
	SimilarityFloor  *float32
	MatchCount       *int
	MemoryThreshold  *float32
	MemoryTrustFloor *int
	Temperature      *float32
	MaxTokens        *int
	MaxContextChars  *int
	PageLimit        *int
	CacheTTLSeconds  *int
	FileTTLSeconds   *int
	BoostFactor      *float32
	BasePrompt       *string
	IdleSeconds      *int
	RecentTurnLimit  *int
}

type scopeRef struct {
	scopeType  string
	scopeValue string
}

// Resolve walks the scope chain for the organization and returns the
// effective configuration. Unknown orgs and empty tables resolve to defaults.
func (r *AgentConfigRepository) Resolve(ctx context.Context, orgID string) (*domain.AgentConfig, error) {
	chain := make([]scopeRef, 0, 3)
	if orgID != "" {
		chain = append(chain, scopeRef{domain.ConfigScopeOrg, orgID})
		vertical, err := r.orgVertical(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if vertical != "" {
			chain = append(chain, scopeRef{domain.ConfigScopeVertical, vertical})
		}
	}
	chain = append(chain, scopeRef{domain.ConfigScopeGlobal, ""})

	cfg := domain.DefaultAgentConfig()
	for _, scope := range chain {
		row, err := r.lookup(ctx, scope.scopeType, scope.scopeValue)
		if err != nil {
			return nil, err
		}
		if row != nil {
			overlay(&cfg, row)
			return &cfg, nil
		}
	}
	return &cfg, nil
}

func (r *AgentConfigRepository) orgVertical(ctx context.Context, orgID string) (string, error) {
	var vertical string
	err := r.pool.QueryRow(ctx,
		`SELECT vertical FROM organizations WHERE id = $1`, orgID).Scan(&vertical)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return vertical, err
}

func (r *AgentConfigRepository) lookup(ctx context.Context, scopeType, scopeValue string) (*configRow, error) {
	var row configRow
	err := r.pool.QueryRow(ctx,
		`SELECT chunk_model, fulldoc_model, embedding_model, similarity_floor, match_count,
		        memory_threshold, memory_trust_floor, temperature, max_tokens, max_context_chars,
		        page_limit, cache_ttl_seconds, file_ttl_seconds, boost_factor, base_prompt,
		        idle_seconds, recent_turn_limit
		 FROM agent_configs WHERE scope_type = $1 AND scope_value = $2`,
		scopeType, scopeValue).
		Scan(&row.ChunkModel, &row.FullDocModel, &row.EmbeddingModel, &row.SimilarityFloor,
			&row.MatchCount, &row.MemoryThreshold, &row.MemoryTrustFloor, &row.Temperature,
			&row.MaxTokens, &row.MaxContextChars, &row.PageLimit, &row.CacheTTLSeconds,
			&row.FileTTLSeconds, &row.BoostFactor, &row.BasePrompt, &row.IdleSeconds,
			&row.RecentTurnLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func overlay(cfg *domain.AgentConfig, row *configRow) {
	if row.ChunkModel != nil {
		cfg.ChunkModel = *row.ChunkModel
	}
	if row.FullDocModel != nil {
		cfg.FullDocModel = *row.FullDocModel
	}
	if row.EmbeddingModel != nil {
		cfg.EmbeddingModel = *row.EmbeddingModel
	}
	if row.SimilarityFloor != nil {
		cfg.SimilarityFloor = *row.SimilarityFloor
	}
	if row.MatchCount != nil {
		cfg.MatchCount = *row.MatchCount
	}
	if row.MemoryThreshold != nil {
		cfg.MemoryThreshold = *row.MemoryThreshold
	}
	if row.MemoryTrustFloor != nil {
		cfg.MemoryTrustFloor = *row.MemoryTrustFloor
	}
	if row.Temperature != nil {
		cfg.Temperature = *row.Temperature
	}
	if row.MaxTokens != nil {
		cfg.MaxTokens = *row.MaxTokens
	}
	if row.MaxContextChars != nil {
		cfg.MaxContextChars = *row.MaxContextChars
	}
	if row.PageLimit != nil {
		cfg.PageLimit = *row.PageLimit
	}
	if row.CacheTTLSeconds != nil {
		cfg.CacheTTL = time.Duration(*row.CacheTTLSeconds) * time.Second
	}
	if row.FileTTLSeconds != nil {
		cfg.FileTTL = time.Duration(*row.FileTTLSeconds) * time.Second
	}
	if row.BoostFactor != nil {
		cfg.BoostFactor = *row.BoostFactor
	}
	if row.BasePrompt != nil {
		cfg.BasePrompt = *row.BasePrompt
	}
	if row.IdleSeconds != nil {
		cfg.ConversationIdle = time.Duration(*row.IdleSeconds) * time.Second
	}
	if row.RecentTurnLimit != nil {
		cfg.RecentTurnLimit = *row.RecentTurnLimit
	}
}
