package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically counts a request in the current window.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = window in milliseconds
// Returns: [count after this request, 1=allowed/0=denied, remaining ms in window]
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = tonumber(redis.call('GET', key) or '0')
if count >= limit then
    local ttl = redis.call('PTTL', key)
    if ttl < 0 then
        redis.call('PEXPIRE', key, window_ms)
        ttl = window_ms
    end
    return {count, 0, ttl}
end

count = redis.call('INCR', key)
if count == 1 then
    redis.call('PEXPIRE', key, window_ms)
end
local ttl = redis.call('PTTL', key)
return {count, 1, ttl}
`)

// Redis shares windows between every instance pointed at the same server.
type Redis struct {
	rdb    redis.UniversalClient
	cfg    Config
	prefix string
	logger *slog.Logger
}

// NewRedis creates a Redis-backed limiter. If rdb is nil, all checks pass (fail open).
func NewRedis(rdb redis.UniversalClient, cfg Config, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, cfg: cfg.withDefaults(), prefix: "dentassist:rl:", logger: logger}
}

func (l *Redis) Check(ctx context.Context, key string) (LimitResult, error) {
	now := time.Now()
	if l.rdb == nil {
		return LimitResult{Allowed: true, Limit: l.cfg.Limit, Remaining: l.cfg.Limit - 1, ResetAt: now.Add(l.cfg.Window)}, nil
	}

	result, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + key},
		l.cfg.Limit, l.cfg.Window.Milliseconds(),
	).Int64Slice()
	if err == nil && len(result) != 3 {
		err = fmt.Errorf("unexpected script result length %d", len(result))
	}
	if err != nil {
		// Fail open on Redis errors
		l.logger.WarnContext(ctx, "rate limit check failed, allowing request", "error", err)
		return LimitResult{Allowed: true, Limit: l.cfg.Limit, Remaining: l.cfg.Limit, ResetAt: now.Add(l.cfg.Window)}, nil
	}

	count, allowed, ttl := result[0], result[1] == 1, time.Duration(result[2])*time.Millisecond
	remaining := l.cfg.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	res := LimitResult{
		Allowed:   allowed,
		Limit:     l.cfg.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
	}
	if !allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
