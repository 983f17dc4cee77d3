package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/af-corp/dentassist/internal/ratelimit"
)

// ErrInvalidRequest marks input the pipeline refuses before doing any work.
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// RateLimitedError is returned when the client's quota is exhausted. It unwraps to
// ratelimit.ErrLimitExceeded.
type RateLimitedError struct {
	ClientKey string
	Limit     ratelimit.LimitResult
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %s", e.ClientKey, e.RetryAfter())
}

func (e *RateLimitedError) Unwrap() error { return ratelimit.ErrLimitExceeded }

func (e *RateLimitedError) RetryAfter() time.Duration { return e.Limit.RetryAfter }
