package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// QAMemoryRepository looks up previously validated question/answer pairs by
// embedding similarity.
type QAMemoryRepository struct {
	pool *pgxpool.Pool
}

func NewQAMemoryRepository(pool *pgxpool.Pool) *QAMemoryRepository {
	return &QAMemoryRepository{pool: pool}
}

// BestMatch returns the single closest entry above the similarity threshold
// for the tenant scope, or nil when nothing qualifies. Project-scoped
// lookups also see org-wide entries.
func (r *QAMemoryRepository) BestMatch(ctx context.Context, embedding []float32, orgID, projectID string, threshold float32, limit int) (*domain.QAMemoryEntry, error) {
	if limit <= 0 {
		limit = 3
	}

	vec := pgvector.NewVector(embedding)

	row := r.pool.QueryRow(ctx,
		`SELECT id, question, answer, (1 - (embedding <=> $1))::REAL AS similarity,
		        trust_score, is_expert_faq, file_ids
		 FROM qa_memory
		 WHERE org_id = $2 AND (project_id = '' OR project_id = $3)
		   AND (1 - (embedding <=> $1)) >= $4
		 ORDER BY embedding <=> $1
		 LIMIT $5`,
		vec, orgID, projectID, threshold, limit)

	var entry domain.QAMemoryEntry
	err := row.Scan(&entry.ID, &entry.Question, &entry.Answer, &entry.Similarity,
		&entry.TrustScore, &entry.IsExpertFAQ, &entry.FileIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// IncrementUsage bumps the entry's trust score and usage clock. Best-effort
// at the call site; failures there are logged, not fatal.
func (r *QAMemoryRepository) IncrementUsage(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE qa_memory SET trust_score = trust_score + 1, last_used_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to increment memory usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("memory entry %s not found", id)
	}
	return nil
}
