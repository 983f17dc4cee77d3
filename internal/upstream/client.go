// Package upstream talks to the chat-completion service that produces answers.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/af-corp/dentassist/internal/config"
)

// Completion is one system+user exchange sent to the model.
type Completion struct {
	System    string
	User      string
	MaxTokens int
}

// Client returns the model's raw text answer for a completion.
type Client interface {
	Name() string
	Complete(ctx context.Context, c Completion) (string, error)
}

// New builds the adapter selected by cfg.Provider. Unknown providers fall back to the
// OpenAI-compatible adapter.
func New(cfg config.UpstreamConfig) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base_url is empty", ErrNotConfigured)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api_key is empty", ErrNotConfigured)
	}

	client := NewHTTPClient(cfg.Timeout)
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg, client), nil
	default:
		return NewOpenAI(cfg, client), nil
	}
}

// NewHTTPClient returns the pooled client shared by adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// Unconfigured fails every call. It lets the server start without credentials and report the
// problem per request.
type Unconfigured struct {
	Reason error
}

func (Unconfigured) Name() string { return "unconfigured" }

func (u Unconfigured) Complete(_ context.Context, _ Completion) (string, error) {
	return "", &Error{Provider: "unconfigured", Err: u.Reason}
}
