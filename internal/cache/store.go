// Package cache stores sanitized answers keyed by a digest of the request that produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is how long an answer stays servable after it was stored.
const DefaultTTL = 30 * time.Minute

// ErrCache marks a cache backend failure. Callers treat it as a miss.
var ErrCache = errors.New("cache error")

// Value is what the pipeline stores for a request.
type Value struct {
	Answer   string `json:"answer"`
	ActionID string `json:"action_id"`
}

// Entry is a stored Value with its lifetime.
type Entry struct {
	Value
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats are cumulative since start or the last Clear.
type Stats struct {
	Entries   int           `json:"entry_count"`
	Hits      int64         `json:"hit_count"`
	Misses    int64         `json:"miss_count"`
	Evictions int64         `json:"eviction_count"`
	TTL       time.Duration `json:"-"`
}

// Store is implemented by the in-memory and Redis backends.
type Store interface {
	// Get returns the entry for key. Expired entries are reported as misses.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put stores v under key, replacing any previous entry, expiring after the store TTL.
	Put(ctx context.Context, key string, v Value) error
	Stats(ctx context.Context) (Stats, error)
	// Clear drops every entry and resets the counters.
	Clear(ctx context.Context) error
}

// Key derives the cache key of a request. Surrounding whitespace of the prompt is ignored, case is
// not. digest identifies attached content and may be empty.
func Key(prompt, actionID, digest string) string {
	if digest == "" {
		digest = "no_file"
	}
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(actionID)))
	h.Write([]byte{0})
	h.Write([]byte(digest))
	return hex.EncodeToString(h.Sum(nil))
}
