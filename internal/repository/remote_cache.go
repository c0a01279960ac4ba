package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RemoteCacheRepository persists provider-side context cache entries and the
// file-level remote-URI records they are built from. Reads and writes are
// deliberately unguarded: a concurrent rebuild race costs an extra provider
// call and the losing write is overwritten, both results being valid.
type RemoteCacheRepository struct {
	pool *pgxpool.Pool
}

func NewRemoteCacheRepository(pool *pgxpool.Pool) *RemoteCacheRepository {
	return &RemoteCacheRepository{pool: pool}
}

// GetCache returns the conversation's cache entry, or nil when none exists.
func (r *RemoteCacheRepository) GetCache(ctx context.Context, conversationID string) (*domain.RemoteCacheEntry, error) {
	var entry domain.RemoteCacheEntry
	err := r.pool.QueryRow(ctx,
		`SELECT conversation_id, handle, file_ids, expires_at, created_at
		 FROM remote_context_caches WHERE conversation_id = $1`,
		conversationID).
		Scan(&entry.ConversationID, &entry.Handle, &entry.FileIDs, &entry.ExpiresAt, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PutCache upserts the conversation's cache entry. Last write wins.
func (r *RemoteCacheRepository) PutCache(ctx context.Context, entry *domain.RemoteCacheEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO remote_context_caches (conversation_id, handle, file_ids, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id)
		 DO UPDATE SET handle = EXCLUDED.handle, file_ids = EXCLUDED.file_ids, expires_at = EXCLUDED.expires_at`,
		entry.ConversationID, entry.Handle, entry.FileIDs, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// DeleteCache drops the conversation's cache entry.
func (r *RemoteCacheRepository) DeleteCache(ctx context.Context, conversationID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM remote_context_caches WHERE conversation_id = $1`, conversationID)
	return err
}

// GetFileRecords returns the remote-URI records for the given file ids,
// keyed by file id. Missing files simply have no entry.
func (r *RemoteCacheRepository) GetFileRecords(ctx context.Context, fileIDs []string) (map[string]*domain.RemoteFileRecord, error) {
	records := make(map[string]*domain.RemoteFileRecord, len(fileIDs))
	if len(fileIDs) == 0 {
		return records, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT file_id, uri, mime_type, expires_at
		 FROM remote_file_uris WHERE file_id = ANY($1)`,
		fileIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.RemoteFileRecord
		if err := rows.Scan(&rec.FileID, &rec.URI, &rec.MimeType, &rec.ExpiresAt); err != nil {
			return nil, err
		}
		records[rec.FileID] = &rec
	}
	return records, rows.Err()
}

// PutFileRecord upserts a remote-URI record.
func (r *RemoteCacheRepository) PutFileRecord(ctx context.Context, rec *domain.RemoteFileRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO remote_file_uris (file_id, uri, mime_type, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (file_id)
		 DO UPDATE SET uri = EXCLUDED.uri, mime_type = EXCLUDED.mime_type, expires_at = EXCLUDED.expires_at`,
		rec.FileID, rec.URI, rec.MimeType, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store file record: %w", err)
	}
	return nil
}
