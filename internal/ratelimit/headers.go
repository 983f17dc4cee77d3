package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// WriteHeaders sets the rate limit headers for result. Retry-After is only set on denial and is
// rounded up to whole seconds.
func WriteHeaders(w http.ResponseWriter, result LimitResult) {
	if result.Limit < 0 {
		return
	}
	w.Header().Set(headerRateLimitLimit, strconv.FormatInt(result.Limit, 10))
	w.Header().Set(headerRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
	if !result.ResetAt.IsZero() {
		w.Header().Set(headerRateLimitReset, result.ResetAt.UTC().Format(time.RFC3339))
	}
	if !result.Allowed {
		w.Header().Set(headerRetryAfter, strconv.Itoa(RetryAfterSeconds(result.RetryAfter)))
	}
}

// RetryAfterSeconds rounds d up to whole seconds, with a minimum of one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
