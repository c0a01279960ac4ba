//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/docsage-ai/docsage/internal/service"
	"github.com/docsage-ai/docsage/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCorpusFile(ctx context.Context, t *testing.T, pool *pgxpool.Pool, orgID, layer, name string, pages int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO corpus_files (id, org_id, layer, name, storage_key, page_count, chunk_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)`,
		id, orgID, layer, name, "docs/"+name, pages)
	require.NoError(t, err)
	return id
}

func seedCorpusChunk(ctx context.Context, t *testing.T, pool *pgxpool.Pool, fileID *string, orgID, userID, layer, sourceType, content string, embedding []float32) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO corpus_chunks (id, file_id, org_id, user_id, layer, source_type, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, fileID, orgID, userID, layer, sourceType, content, pgvector.NewVector(embedding))
	require.NoError(t, err)
	return id
}

func TestRetrievalRepository_Search(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewRetrievalRepository(pool)

	fileID := seedCorpusFile(ctx, t, pool, "org-1", "org", "warranty.pdf", 12)
	seedCorpusChunk(ctx, t, pool, &fileID, "org-1", "", "org", "document",
		"The warranty period is two years.", unitEmbedding(0))
	seedCorpusChunk(ctx, t, pool, &fileID, "org-1", "", "org", "document",
		"Returns require a receipt.", unitEmbedding(1))

	rows, err := repo.Search(ctx, service.RetrievalParams{
		Embedding:       unitEmbedding(0),
		QueryText:       "warranty period",
		OrgID:           "org-1",
		IncludeOrg:      true,
		MatchCount:      10,
		SimilarityFloor: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "The warranty period is two years.", rows[0].Content)
	assert.InDelta(t, 1.0, rows[0].Similarity, 0.001)
	assert.Equal(t, "org", rows[0].Layer)
	require.NotNil(t, rows[0].FileID)
	assert.Equal(t, fileID, *rows[0].FileID)
	require.NotNil(t, rows[0].FileName)
	assert.Equal(t, "warranty.pdf", *rows[0].FileName)
	assert.Equal(t, 12, rows[0].PageCount)
}

func TestRetrievalRepository_Search_LayerScoping(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewRetrievalRepository(pool)

	seedCorpusChunk(ctx, t, pool, nil, "org-1", "", "org", "document",
		"tenant chunk", unitEmbedding(0))
	seedCorpusChunk(ctx, t, pool, nil, "org-2", "", "org", "document",
		"other tenant chunk", unitEmbedding(0))
	seedCorpusChunk(ctx, t, pool, nil, "", "user-1", "user", "transcript",
		"my transcript", unitEmbedding(0))
	seedCorpusChunk(ctx, t, pool, nil, "", "user-2", "user", "transcript",
		"someone else's transcript", unitEmbedding(0))

	rows, err := repo.Search(ctx, service.RetrievalParams{
		Embedding:       unitEmbedding(0),
		QueryText:       "anything",
		OrgID:           "org-1",
		UserID:          "user-1",
		IncludeOrg:      true,
		IncludeUser:     true,
		MatchCount:      10,
		SimilarityFloor: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	contents := []string{rows[0].Content, rows[1].Content}
	assert.ElementsMatch(t, []string{"tenant chunk", "my transcript"}, contents)
}

func TestRetrievalRepository_Search_Boost(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewRetrievalRepository(pool)

	plainFile := seedCorpusFile(ctx, t, pool, "org-1", "org", "a.pdf", 3)
	boostedFile := seedCorpusFile(ctx, t, pool, "org-1", "org", "b.pdf", 3)

	// Identical embeddings; only the boost separates the two.
	seedCorpusChunk(ctx, t, pool, &plainFile, "org-1", "", "org", "document",
		"plain chunk", unitEmbedding(0))
	seedCorpusChunk(ctx, t, pool, &boostedFile, "org-1", "", "org", "document",
		"boosted chunk", unitEmbedding(0))

	rows, err := repo.Search(ctx, service.RetrievalParams{
		Embedding:       unitEmbedding(0),
		QueryText:       "anything",
		OrgID:           "org-1",
		IncludeOrg:      true,
		MatchCount:      10,
		SimilarityFloor: 0.5,
		BoostFileIDs:    []string{boostedFile},
		BoostFactor:     1.5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "boosted chunk", rows[0].Content)
	assert.True(t, rows[0].Boosted)
	assert.False(t, rows[1].Boosted)
	assert.Greater(t, rows[0].RankScore, rows[1].RankScore)
}

func TestRetrievalRepository_Search_SimilarityFloor(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewRetrievalRepository(pool)

	seedCorpusChunk(ctx, t, pool, nil, "org-1", "", "org", "document",
		"far chunk", unitEmbedding(1))

	rows, err := repo.Search(ctx, service.RetrievalParams{
		Embedding:       unitEmbedding(0),
		QueryText:       "anything",
		OrgID:           "org-1",
		IncludeOrg:      true,
		MatchCount:      10,
		SimilarityFloor: 0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
