// Package ratelimit enforces a fixed-window request quota per client.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultLimit  = 100
	DefaultWindow = time.Hour
)

// ErrLimitExceeded is returned by callers that turn a denied LimitResult into an error.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts one request for key and reports whether it is within quota.
// Denied checks do not consume quota.
type Limiter interface {
	Check(ctx context.Context, key string) (LimitResult, error)
}

// Config is the quota shared by every client.
type Config struct {
	Limit  int64
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Unlimited allows everything. It backs deployments with rate limiting disabled.
type Unlimited struct{}

func (Unlimited) Check(_ context.Context, _ string) (LimitResult, error) {
	return LimitResult{Allowed: true, Limit: -1, Remaining: -1}, nil
}
