package domain

import "time"

// RemoteCacheEntry maps a conversation to a provider-side context cache built
// from an exact set of file ids. Reuse requires set equality and a live expiry;
// any drift in membership invalidates the cache and triggers a rebuild.
type RemoteCacheEntry struct {
	ConversationID string
	Handle         string
	FileIDs        []string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// ValidFor reports whether the cache can be reused for the given candidate
// file-id set. File order is irrelevant; membership is not.
func (e *RemoteCacheEntry) ValidFor(fileIDs []string, now time.Time) bool {
	if e == nil || e.Handle == "" {
		return false
	}
	if !now.Before(e.ExpiresAt) {
		return false
	}
	return FileIDSetEqual(e.FileIDs, fileIDs)
}

// FileIDSetEqual compares two id slices as sets.
func FileIDSetEqual(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	if len(seen) != distinctCount(b) {
		return false
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

func distinctCount(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// RemoteFileRecord is a persisted provider-side file URI. File URIs and
// context caches expire on independent clocks: a valid URI can outlive the
// cache that referenced it.
type RemoteFileRecord struct {
	FileID    string
	URI       string
	MimeType  string
	ExpiresAt time.Time
}

// Expired reports whether the remote URI can no longer be referenced.
func (r *RemoteFileRecord) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}
