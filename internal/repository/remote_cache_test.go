//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteCacheRepository_CacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	convRepo := NewConversationRepository(pool)
	repo := NewRemoteCacheRepository(pool)

	conv := testConversation("user-1")
	require.NoError(t, convRepo.Create(ctx, conv))

	missing, err := repo.GetCache(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	entry := &domain.RemoteCacheEntry{
		ConversationID: conv.ID,
		Handle:         "cachedContents/abc123",
		FileIDs:        []string{"file-1", "file-2"},
		ExpiresAt:      expires,
	}
	require.NoError(t, repo.PutCache(ctx, entry))

	got, err := repo.GetCache(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Handle, got.Handle)
	assert.ElementsMatch(t, entry.FileIDs, got.FileIDs)
	assert.WithinDuration(t, expires, got.ExpiresAt, time.Millisecond)

	// Upsert replaces the existing entry for the conversation.
	entry.Handle = "cachedContents/def456"
	entry.FileIDs = []string{"file-3"}
	require.NoError(t, repo.PutCache(ctx, entry))

	got, err = repo.GetCache(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cachedContents/def456", got.Handle)
	assert.Equal(t, []string{"file-3"}, got.FileIDs)
}

func TestRemoteCacheRepository_DeleteCache(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	convRepo := NewConversationRepository(pool)
	repo := NewRemoteCacheRepository(pool)

	conv := testConversation("user-1")
	require.NoError(t, convRepo.Create(ctx, conv))

	entry := &domain.RemoteCacheEntry{
		ConversationID: conv.ID,
		Handle:         "cachedContents/abc123",
		FileIDs:        []string{"file-1"},
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, repo.PutCache(ctx, entry))
	require.NoError(t, repo.DeleteCache(ctx, conv.ID))

	got, err := repo.GetCache(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent entry is not an error.
	assert.NoError(t, repo.DeleteCache(ctx, uuid.NewString()))
}

func TestRemoteCacheRepository_FileRecords(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewRemoteCacheRepository(pool)

	expires := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)
	require.NoError(t, repo.PutFileRecord(ctx, &domain.RemoteFileRecord{
		FileID:    "file-1",
		URI:       "files/remote-1",
		MimeType:  "application/pdf",
		ExpiresAt: expires,
	}))
	require.NoError(t, repo.PutFileRecord(ctx, &domain.RemoteFileRecord{
		FileID:    "file-2",
		URI:       "files/remote-2",
		MimeType:  "application/pdf",
		ExpiresAt: expires,
	}))

	records, err := repo.GetFileRecords(ctx, []string{"file-1", "file-3"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "files/remote-1", records["file-1"].URI)
	assert.Nil(t, records["file-3"])

	// Re-upload replaces the stored URI.
	require.NoError(t, repo.PutFileRecord(ctx, &domain.RemoteFileRecord{
		FileID:    "file-1",
		URI:       "files/remote-1b",
		MimeType:  "application/pdf",
		ExpiresAt: expires.Add(time.Hour),
	}))

	records, err = repo.GetFileRecords(ctx, []string{"file-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "files/remote-1b", records["file-1"].URI)

	empty, err := repo.GetFileRecords(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
