package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrNotConfigured = errors.New("completion service not configured")
	ErrCircuitOpen   = errors.New("completion service circuit open")
	ErrEmptyResponse = errors.New("completion service returned no text")
)

// Error is a failed completion call. Err may contain provider detail and is never shown to clients.
type Error struct {
	Provider   string
	StatusCode int // 0 when no response was received
	Retryable  bool
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SafeMessage describes the failure without provider internals.
func (e *Error) SafeMessage() string {
	switch {
	case e.Timeout:
		return "the completion service timed out"
	case errors.Is(e.Err, ErrNotConfigured):
		return "the completion service is not configured"
	case errors.Is(e.Err, ErrCircuitOpen):
		return "the completion service is temporarily unavailable"
	case errors.Is(e.Err, ErrEmptyResponse):
		return "the completion service returned an empty answer"
	case e.StatusCode == http.StatusTooManyRequests:
		return "the completion service is overloaded"
	case e.StatusCode != 0:
		return fmt.Sprintf("the completion service returned status %d", e.StatusCode)
	default:
		return "the completion service is unreachable"
	}
}

func statusError(provider string, status int, body []byte) *Error {
	return &Error{
		Provider:   provider,
		StatusCode: status,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
		Err:        fmt.Errorf("%s", snippet(body, 512)),
	}
}

// transportError classifies a failure to get a response at all. A cancelled caller is not retried.
func transportError(provider string, err error) *Error {
	e := &Error{Provider: provider, Err: err, Retryable: true}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		e.Timeout = true
	}
	if errors.Is(err, context.Canceled) {
		e.Retryable = false
	}
	return e
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
