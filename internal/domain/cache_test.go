package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemoteCacheEntry_ValidFor(t *testing.T) {
	now := time.Now().UTC()

	entry := &RemoteCacheEntry{
		ConversationID: "c1",
		Handle:         "cachedContents/abc",
		FileIDs:        []string{"f1", "f2", "f3"},
		ExpiresAt:      now.Add(10 * time.Minute),
	}

	t.Run("reuse granted for identical set", func(t *testing.T) {
		assert.True(t, entry.ValidFor([]string{"f1", "f2", "f3"}, now))
	})

	t.Run("file order does not invalidate", func(t *testing.T) {
		assert.True(t, entry.ValidFor([]string{"f3", "f1", "f2"}, now))
	})

	t.Run("changed membership invalidates", func(t *testing.T) {
		assert.False(t, entry.ValidFor([]string{"f1", "f2"}, now))
		assert.False(t, entry.ValidFor([]string{"f1", "f2", "f4"}, now))
		assert.False(t, entry.ValidFor([]string{"f1", "f2", "f3", "f4"}, now))
	})

	t.Run("expired entry invalidates", func(t *testing.T) {
		assert.False(t, entry.ValidFor([]string{"f1", "f2", "f3"}, now.Add(11*time.Minute)))
		assert.False(t, entry.ValidFor([]string{"f1", "f2", "f3"}, entry.ExpiresAt))
	})

	t.Run("nil or handleless entry never valid", func(t *testing.T) {
		var missing *RemoteCacheEntry
		assert.False(t, missing.ValidFor([]string{"f1"}, now))
		assert.False(t, (&RemoteCacheEntry{FileIDs: []string{"f1"}, ExpiresAt: now.Add(time.Hour)}).ValidFor([]string{"f1"}, now))
	})
}

func TestFileIDSetEqual(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want bool
	}{
		{"both empty", nil, nil, true},
		{"same order", []string{"a", "b"}, []string{"a", "b"}, true},
		{"different order", []string{"a", "b"}, []string{"b", "a"}, true},
		{"duplicates collapse", []string{"a", "a", "b"}, []string{"b", "a"}, true},
		{"missing member", []string{"a", "b"}, []string{"a"}, false},
		{"extra member", []string{"a"}, []string{"a", "b"}, false},
		{"disjoint", []string{"a"}, []string{"b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileIDSetEqual(tt.a, tt.b))
		})
	}
}

func TestRemoteFileRecord_Expired(t *testing.T) {
	now := time.Now().UTC()

	live := &RemoteFileRecord{FileID: "f1", URI: "files/xyz", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, live.Expired(now))
	assert.True(t, live.Expired(now.Add(2*time.Hour)))

	var missing *RemoteFileRecord
	assert.True(t, missing.Expired(now))
}
