package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/gemini"
)

type fakeCacheRepo struct {
	cache       *domain.RemoteCacheEntry
	cacheErr    error
	records     map[string]*domain.RemoteFileRecord
	putCaches   []*domain.RemoteCacheEntry
	putRecords  []*domain.RemoteFileRecord
	deleted     []string
	putCacheErr error
}

func (f *fakeCacheRepo) GetCache(_ context.Context, _ string) (*domain.RemoteCacheEntry, error) {
	return f.cache, f.cacheErr
}

func (f *fakeCacheRepo) PutCache(_ context.Context, entry *domain.RemoteCacheEntry) error {
	f.putCaches = append(f.putCaches, entry)
	return f.putCacheErr
}

func (f *fakeCacheRepo) DeleteCache(_ context.Context, conversationID string) error {
	f.deleted = append(f.deleted, conversationID)
	return nil
}

func (f *fakeCacheRepo) GetFileRecords(_ context.Context, fileIDs []string) (map[string]*domain.RemoteFileRecord, error) {
	out := make(map[string]*domain.RemoteFileRecord)
	for _, id := range fileIDs {
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (f *fakeCacheRepo) PutFileRecord(_ context.Context, rec *domain.RemoteFileRecord) error {
	f.putRecords = append(f.putRecords, rec)
	return nil
}

type fakeDocStore struct {
	getErr error
	keys   []string
}

func (f *fakeDocStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	f.keys = append(f.keys, key)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader("pdf bytes")), nil
}

type fakeProvider struct {
	uploads    []string
	uploadErr  error
	caches     int
	cacheErr   error
	cacheTTL   time.Duration
	cacheFiles []gemini.FileRef
}

func (f *fakeProvider) UploadFile(_ context.Context, _ io.Reader, mimeType, displayName string) (*gemini.UploadedFile, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, displayName)
	return &gemini.UploadedFile{Name: "files/" + displayName, URI: "uri://" + displayName, MimeType: mimeType}, nil
}

func (f *fakeProvider) CreateCache(_ context.Context, _, _ string, files []gemini.FileRef, ttl time.Duration) (*gemini.CacheInfo, error) {
	if f.cacheErr != nil {
		return nil, f.cacheErr
	}
	f.caches++
	f.cacheTTL = ttl
	f.cacheFiles = files
	return &gemini.CacheInfo{Handle: "cachedContents/abc"}, nil
}

func newTestManager(repo *fakeCacheRepo, store *fakeDocStore, provider *fakeProvider, now time.Time) *FileCacheManager {
	m := NewFileCacheManager(repo, store, provider)
	m.now = func() time.Time { return now }
	return m
}

func testFiles() []*domain.FileInfo {
	return []*domain.FileInfo{
		{ID: "f1", Name: "handbook.pdf", StorageKey: "docs/f1", MimeType: "application/pdf", PageCount: 4},
		{ID: "f2", Name: "policy.pdf", StorageKey: "docs/f2", MimeType: "application/pdf", PageCount: 3},
	}
}

func TestFileCacheManager_Ensure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := domain.DefaultAgentConfig()

	t.Run("valid cache with same file set is reused", func(t *testing.T) {
		repo := &fakeCacheRepo{cache: &domain.RemoteCacheEntry{
			ConversationID: "c1",
			Handle:         "cachedContents/old",
			FileIDs:        []string{"f2", "f1"},
			ExpiresAt:      now.Add(10 * time.Minute),
		}}
		provider := &fakeProvider{}
		m := newTestManager(repo, &fakeDocStore{}, provider, now)

		cc, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		require.Nil(t, fb)
		assert.True(t, cc.Reused)
		assert.Equal(t, "cachedContents/old", cc.Handle)
		assert.Zero(t, cc.Uploads)
		assert.Zero(t, provider.caches)
	})

	t.Run("changed file membership forces a new cache", func(t *testing.T) {
		repo := &fakeCacheRepo{
			cache: &domain.RemoteCacheEntry{
				ConversationID: "c1",
				Handle:         "cachedContents/old",
				FileIDs:        []string{"f1"},
				ExpiresAt:      now.Add(10 * time.Minute),
			},
			records: map[string]*domain.RemoteFileRecord{
				"f1": {FileID: "f1", URI: "uri://f1", MimeType: "application/pdf", ExpiresAt: now.Add(time.Hour)},
			},
		}
		provider := &fakeProvider{}
		m := newTestManager(repo, &fakeDocStore{}, provider, now)

		cc, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		require.Nil(t, fb)
		assert.False(t, cc.Reused)
		assert.Equal(t, 1, cc.Uploads)
		assert.Equal(t, []string{"policy.pdf"}, provider.uploads)
		assert.Equal(t, []string{"c1"}, repo.deleted)
		require.Len(t, repo.putCaches, 1)
		assert.ElementsMatch(t, []string{"f1", "f2"}, repo.putCaches[0].FileIDs)
		assert.Equal(t, now.Add(cfg.CacheTTL), repo.putCaches[0].ExpiresAt)
	})

	t.Run("expired cache with unexpired uploads reuses file uris", func(t *testing.T) {
		repo := &fakeCacheRepo{
			cache: &domain.RemoteCacheEntry{
				ConversationID: "c1",
				Handle:         "cachedContents/old",
				FileIDs:        []string{"f1", "f2"},
				ExpiresAt:      now.Add(-time.Minute),
			},
			records: map[string]*domain.RemoteFileRecord{
				"f1": {FileID: "f1", URI: "uri://f1", MimeType: "application/pdf", ExpiresAt: now.Add(time.Hour)},
				"f2": {FileID: "f2", URI: "uri://f2", MimeType: "application/pdf", ExpiresAt: now.Add(time.Hour)},
			},
		}
		provider := &fakeProvider{}
		store := &fakeDocStore{}
		m := newTestManager(repo, store, provider, now)

		cc, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		require.Nil(t, fb)
		assert.Zero(t, cc.Uploads)
		assert.Equal(t, 1, cc.CachesCreated)
		assert.Empty(t, store.keys)
		require.Len(t, provider.cacheFiles, 2)
	})

	t.Run("second identical request performs no uploads or cache creations", func(t *testing.T) {
		repo := &fakeCacheRepo{records: map[string]*domain.RemoteFileRecord{}}
		provider := &fakeProvider{}
		m := newTestManager(repo, &fakeDocStore{}, provider, now)

		first, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		require.Nil(t, fb)
		assert.Equal(t, 2, first.Uploads)
		assert.Equal(t, 1, first.CachesCreated)

		repo.cache = repo.putCaches[0]
		for _, rec := range repo.putRecords {
			repo.records[rec.FileID] = rec
		}

		second, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		require.Nil(t, fb)
		assert.True(t, second.Reused)
		assert.Zero(t, second.Uploads)
		assert.Zero(t, second.CachesCreated)
		assert.Equal(t, 1, provider.caches)
	})

	t.Run("storage failure degrades instead of erroring", func(t *testing.T) {
		repo := &fakeCacheRepo{}
		m := newTestManager(repo, &fakeDocStore{getErr: errors.New("no such key")}, &fakeProvider{}, now)

		cc, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		assert.Nil(t, cc)
		require.NotNil(t, fb)
		assert.Contains(t, fb.Reason, "handbook.pdf")
	})

	t.Run("cache creation failure degrades", func(t *testing.T) {
		repo := &fakeCacheRepo{}
		provider := &fakeProvider{cacheErr: errors.New("quota")}
		m := newTestManager(repo, &fakeDocStore{}, provider, now)

		cc, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		assert.Nil(t, cc)
		require.NotNil(t, fb)
		assert.Contains(t, fb.Reason, "cache creation failed")
	})

	t.Run("cache record write failure is tolerated", func(t *testing.T) {
		repo := &fakeCacheRepo{putCacheErr: errors.New("conflict")}
		provider := &fakeProvider{}
		m := newTestManager(repo, &fakeDocStore{}, provider, now)

		cc, fb := m.Ensure(ctx, "c1", testFiles(), "sys", "gemini-2.0-flash", &cfg)
		require.Nil(t, fb)
		assert.Equal(t, "cachedContents/abc", cc.Handle)
	})
}
