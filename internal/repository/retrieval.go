package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docsage-ai/docsage/internal/service"
)

// RetrievalRepository wraps the opaque ranked-retrieval call. The ranking
// itself (hybrid vector + lexical + concept expansion) lives in SQL; this
// layer only shapes parameters and scans rows.
type RetrievalRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalRepository(pool *pgxpool.Pool) *RetrievalRepository {
	return &RetrievalRepository{pool: pool}
}

// Search runs one ranked-retrieval call and returns raw rows.
func (r *RetrievalRepository) Search(ctx context.Context, p service.RetrievalParams) ([]*service.RetrievalRow, error) {
	if p.MatchCount <= 0 {
		p.MatchCount = 20
	}
	boostIDs := p.BoostFileIDs
	if boostIDs == nil {
		boostIDs = []string{}
	}
	boostFactor := p.BoostFactor
	if boostFactor <= 0 {
		boostFactor = 1
	}

	rows, err := r.pool.Query(ctx,
		`SELECT chunk_id, content, similarity, rank_score, layer, file_id, file_name,
		        storage_key, mime_type, page_count, chunk_count, source_type, concepts, boosted
		 FROM match_corpus_chunks($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pgvector.NewVector(p.Embedding), p.QueryText,
		p.OrgID, p.ProjectID, p.UserID,
		p.IncludeApp, p.IncludeOrg, p.IncludeProject, p.IncludeUser,
		p.MatchCount, p.SimilarityFloor, p.ExpandConcepts,
		boostIDs, boostFactor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.RetrievalRow
	for rows.Next() {
		var row service.RetrievalRow
		if err := rows.Scan(&row.ChunkID, &row.Content, &row.Similarity, &row.RankScore,
			&row.Layer, &row.FileID, &row.FileName, &row.StorageKey, &row.MimeType,
			&row.PageCount, &row.ChunkCount, &row.SourceType, &row.Concepts, &row.Boosted); err != nil {
			return nil, err
		}
		results = append(results, &row)
	}
	return results, rows.Err()
}
