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

// OpenAI calls an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	cfg    config.UpstreamConfig
	client *http.Client
}

func NewOpenAI(cfg config.UpstreamConfig, client *http.Client) *OpenAI {
	return &OpenAI{cfg: cfg, client: client}
}

func (a *OpenAI) Name() string { return "openai" }

func (a *OpenAI) Complete(ctx context.Context, c Completion) (string, error) {
	body := openAIRequestBody{
		Model: a.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: c.System},
			{Role: "user", Content: c.User},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   c.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
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
		return "", transportError(a.Name(), fmt.Errorf("read openai response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(a.Name(), resp.StatusCode, raw)
	}

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(raw, &oaiResp); err != nil {
		return "", &Error{Provider: a.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal openai response: %w", err)}
	}

	// Chat endpoints fill message.content, legacy completion endpoints fill text.
	if len(oaiResp.Choices) > 0 {
		choice := oaiResp.Choices[0]
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
		if text := strings.TrimSpace(choice.Text); text != "" {
			return text, nil
		}
	}
	return "", &Error{Provider: a.Name(), StatusCode: resp.StatusCode, Err: ErrEmptyResponse}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		Text         string        `json:"text"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}
