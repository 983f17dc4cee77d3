package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/af-corp/dentassist/internal/config"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Messages API.
type Anthropic struct {
	cfg    config.UpstreamConfig
	client *http.Client
}

func NewAnthropic(cfg config.UpstreamConfig, client *http.Client) *Anthropic {
	return &Anthropic{cfg: cfg, client: client}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, c Completion) (string, error) {
	// Anthropic requires max_tokens
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body := anthropicRequestBody{
		Model:       a.cfg.Model,
		System:      c.System,
		Messages:    []anthropicMessage{{Role: "user", Content: c.User}},
		MaxTokens:   maxTokens,
		Temperature: a.cfg.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", transportError(a.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(a.Name(), fmt.Errorf("read anthropic response: %w", err))
	}
	// 529 is Anthropic's overloaded status.
	if resp.StatusCode != http.StatusOK {
		return "", statusError(a.Name(), resp.StatusCode, raw)
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(raw, &antResp); err != nil {
		return "", &Error{Provider: a.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal anthropic response: %w", err)}
	}

	for _, block := range antResp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", &Error{Provider: a.Name(), StatusCode: resp.StatusCode, Err: ErrEmptyResponse}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}
