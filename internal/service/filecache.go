package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/gemini"
	"github.com/docsage-ai/docsage/internal/telemetry"
)

// RemoteCacheRepositoryInterface defines the repository interface for
// provider-side cache and file bookkeeping.
type RemoteCacheRepositoryInterface interface {
	GetCache(ctx context.Context, conversationID string) (*domain.RemoteCacheEntry, error)
	PutCache(ctx context.Context, entry *domain.RemoteCacheEntry) error
	DeleteCache(ctx context.Context, conversationID string) error
	GetFileRecords(ctx context.Context, fileIDs []string) (map[string]*domain.RemoteFileRecord, error)
	PutFileRecord(ctx context.Context, rec *domain.RemoteFileRecord) error
}

// DocumentStoreInterface reads source documents out of object storage.
type DocumentStoreInterface interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// FullDocProviderInterface uploads documents and creates context caches on
// the full-document provider.
type FullDocProviderInterface interface {
	UploadFile(ctx context.Context, r io.Reader, mimeType, displayName string) (*gemini.UploadedFile, error)
	CreateCache(ctx context.Context, model, systemPrompt string, files []gemini.FileRef, ttl time.Duration) (*gemini.CacheInfo, error)
}

// CacheContext is a ready-to-use document context for full-document
// generation: either a reusable cache handle or freshly assembled file
// references. Uploads and CachesCreated count the remote calls made.
type CacheContext struct {
	Handle        string
	Files         []gemini.FileRef
	Reused        bool
	Uploads       int
	CachesCreated int
}

// Fallback signals that full-document context could not be assembled and
// the request should degrade to chunk mode. Err carries the underlying
// cause for logging; Reason is the client-facing explanation.
type Fallback struct {
	Reason string
	Err    error
}

// FileCacheManager assembles provider-side document context. It reuses an
// existing cache only when the cache is unexpired and covers exactly the
// candidate file set; otherwise it reuses unexpired file uploads, uploads
// what is missing and creates a fresh cache.
//
// The read-then-write on the cache table is deliberately unguarded:
// concurrent requests for one conversation may both create a cache, and
// the last write wins. The losing cache expires on its own TTL.
type FileCacheManager struct {
	caches   RemoteCacheRepositoryInterface
	store    DocumentStoreInterface
	provider FullDocProviderInterface
	now      func() time.Time
}

// NewFileCacheManager creates a new FileCacheManager instance
func NewFileCacheManager(caches RemoteCacheRepositoryInterface, store DocumentStoreInterface, provider FullDocProviderInterface) *FileCacheManager {
	return &FileCacheManager{caches: caches, store: store, provider: provider, now: time.Now}
}

// Ensure returns a usable document context for the conversation, or a
// Fallback when any provider or storage step fails. Bookkeeping writes are
// best effort: the remote artifacts exist and work for this request even
// if recording them fails.
func (m *FileCacheManager) Ensure(ctx context.Context, conversationID string, files []*domain.FileInfo, systemPrompt, model string, cfg *domain.AgentConfig) (*CacheContext, *Fallback) {
	ctx, span := telemetry.StartSpan(ctx, "FileCacheManager.Ensure", telemetry.SpanAttributes{
		ConversationID: conversationID,
		Operation:      "ensure_cache",
	})
	defer span.End()

	now := m.now()
	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}

	entry, err := m.caches.GetCache(ctx, conversationID)
	if err != nil {
		return nil, &Fallback{Reason: "cache lookup failed", Err: err}
	}
	if entry.ValidFor(fileIDs, now) {
		return &CacheContext{Handle: entry.Handle, Reused: true}, nil
	}
	if entry != nil {
		if err := m.caches.DeleteCache(ctx, conversationID); err != nil {
			log.Printf("stale cache delete failed for conversation %s: %v", conversationID, err)
		}
	}

	refs, uploads, fb := m.ensureFiles(ctx, files, cfg, now)
	if fb != nil {
		return nil, fb
	}

	info, err := m.provider.CreateCache(ctx, model, systemPrompt, refs, cfg.CacheTTL)
	if err != nil {
		return nil, &Fallback{Reason: "context cache creation failed", Err: err}
	}
	expiresAt := info.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(cfg.CacheTTL)
	}
	if err := m.caches.PutCache(ctx, &domain.RemoteCacheEntry{
		ConversationID: conversationID,
		Handle:         info.Handle,
		FileIDs:        fileIDs,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	}); err != nil {
		log.Printf("cache record write failed for conversation %s: %v", conversationID, err)
	}

	return &CacheContext{Handle: info.Handle, Files: refs, Uploads: uploads, CachesCreated: 1}, nil
}

// ensureFiles resolves every candidate file to a provider URI, reusing
// unexpired uploads and uploading the rest from object storage.
func (m *FileCacheManager) ensureFiles(ctx context.Context, files []*domain.FileInfo, cfg *domain.AgentConfig, now time.Time) ([]gemini.FileRef, int, *Fallback) {
	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}
	records, err := m.caches.GetFileRecords(ctx, fileIDs)
	if err != nil {
		return nil, 0, &Fallback{Reason: "file record lookup failed", Err: err}
	}

	refs := make([]gemini.FileRef, 0, len(files))
	uploads := 0
	for _, f := range files {
		if rec, ok := records[f.ID]; ok && !rec.Expired(now) {
			refs = append(refs, gemini.FileRef{URI: rec.URI, MimeType: rec.MimeType})
			continue
		}

		uploaded, fb := m.uploadFile(ctx, f)
		if fb != nil {
			return nil, uploads, fb
		}
		uploads++

		expiresAt := uploaded.ExpiresAt
		if expiresAt.IsZero() {
			expiresAt = now.Add(cfg.FileTTL)
		}
		if err := m.caches.PutFileRecord(ctx, &domain.RemoteFileRecord{
			FileID:    f.ID,
			URI:       uploaded.URI,
			MimeType:  uploaded.MimeType,
			ExpiresAt: expiresAt,
		}); err != nil {
			log.Printf("file record write failed for %s: %v", f.ID, err)
		}
		refs = append(refs, gemini.FileRef{URI: uploaded.URI, MimeType: uploaded.MimeType})
	}
	return refs, uploads, nil
}

func (m *FileCacheManager) uploadFile(ctx context.Context, f *domain.FileInfo) (*gemini.UploadedFile, *Fallback) {
	body, err := m.store.GetObject(ctx, f.StorageKey)
	if err != nil {
		return nil, &Fallback{Reason: fmt.Sprintf("document %s unavailable in storage", f.Name), Err: err}
	}
	defer body.Close()

	uploaded, err := m.provider.UploadFile(ctx, body, f.MimeType, f.Name)
	if err != nil {
		return nil, &Fallback{Reason: fmt.Sprintf("upload of %s failed", f.Name), Err: err}
	}
	return uploaded, nil
}
