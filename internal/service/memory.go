package service

import (
	"context"
	"log"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// QAMemoryRepositoryInterface defines the repository interface for memory lookups.
type QAMemoryRepositoryInterface interface {
	BestMatch(ctx context.Context, embedding []float32, orgID, projectID string, threshold float32, limit int) (*domain.QAMemoryEntry, error)
	IncrementUsage(ctx context.Context, id string) error
}

// MemoryMatcher checks incoming questions against curated question/answer
// memory before any retrieval or generation happens.
type MemoryMatcher struct {
	repo QAMemoryRepositoryInterface
}

// NewMemoryMatcher creates a new MemoryMatcher instance
func NewMemoryMatcher(repo QAMemoryRepositoryInterface) *MemoryMatcher {
	return &MemoryMatcher{repo: repo}
}

// Match returns a usable memory entry for the query embedding, or nil when
// no entry clears both the similarity threshold and the trust gate. Lookup
// failures are swallowed: memory is an accelerator, never a blocker.
func (m *MemoryMatcher) Match(ctx context.Context, embedding []float32, orgID, projectID string, cfg *domain.AgentConfig) *domain.QAMemoryEntry {
	if orgID == "" || len(embedding) == 0 {
		return nil
	}
	entry, err := m.repo.BestMatch(ctx, embedding, orgID, projectID, cfg.MemoryThreshold, cfg.MemoryLimit)
	if err != nil {
		log.Printf("memory lookup failed: %v", err)
		return nil
	}
	if !entry.Usable(cfg.MemoryTrustFloor) {
		return nil
	}
	return entry
}

// RecordUse bumps an entry's trust score. Best effort.
func (m *MemoryMatcher) RecordUse(ctx context.Context, id string) {
	if err := m.repo.IncrementUsage(ctx, id); err != nil {
		log.Printf("memory usage increment failed for %s: %v", id, err)
	}
}

// ReplayTokens splits a stored answer into whitespace-delimited tokens for
// streaming, so a memory hit looks like live generation to the client.
func ReplayTokens(answer string) []string {
	fields := strings.Fields(answer)
	tokens := make([]string, 0, len(fields))
	for i, f := range fields {
		if i < len(fields)-1 {
			f += " "
		}
		tokens = append(tokens, f)
	}
	return tokens
}
