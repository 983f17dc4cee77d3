package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the Redis store writes.
const DefaultRedisPrefix = "dentassist:cache:"

const scanBatch = 500

// Redis keeps entries as JSON strings with a native TTL. Hit and miss counters live in a hash so
// that every gateway instance sharing the server reports the same stats.
// Capacity is left to the server's maxmemory policy.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis returns a Redis-backed store. ttl <= 0 selects DefaultTTL.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (r *Redis) entryKey(key string) string { return r.prefix + "entry:" + key }
func (r *Redis) statsKey() string           { return r.prefix + "stats" }

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.rdb.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.count(ctx, "misses")
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: redis get: %w", ErrCache, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value is dropped so the next Put can replace it.
		r.rdb.Del(ctx, r.entryKey(key))
		r.count(ctx, "misses")
		return Entry{}, false, fmt.Errorf("%w: decode entry: %w", ErrCache, err)
	}
	if !r.now().Before(entry.ExpiresAt) {
		r.count(ctx, "misses")
		return Entry{}, false, nil
	}

	r.count(ctx, "hits")
	return entry, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, v Value) error {
	now := r.now()
	raw, err := json.Marshal(Entry{Value: v, CreatedAt: now, ExpiresAt: now.Add(r.ttl)})
	if err != nil {
		return fmt.Errorf("%w: encode entry: %w", ErrCache, err)
	}
	if err := r.rdb.Set(ctx, r.entryKey(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", ErrCache, err)
	}
	return nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	counters, err := r.rdb.HGetAll(ctx, r.statsKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: redis stats: %w", ErrCache, err)
	}

	entries := 0
	err = r.scan(ctx, func(keys []string) error {
		entries += len(keys)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	var hits, misses int64
	fmt.Sscan(counters["hits"], &hits)
	fmt.Sscan(counters["misses"], &misses)
	return Stats{Entries: entries, Hits: hits, Misses: misses, TTL: r.ttl}, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	err := r.scan(ctx, func(keys []string) error {
		return r.rdb.Del(ctx, keys...).Err()
	})
	if err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.statsKey()).Err(); err != nil {
		return fmt.Errorf("%w: redis reset stats: %w", ErrCache, err)
	}
	return nil
}

// scan calls fn with each non-empty batch of entry keys.
func (r *Redis) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"entry:*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: redis scan: %w", ErrCache, err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return fmt.Errorf("%w: %w", ErrCache, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// count bumps a stats counter. Counter failures never fail a lookup.
func (r *Redis) count(ctx context.Context, field string) {
	r.rdb.HIncrBy(ctx, r.statsKey(), field, 1)
}
