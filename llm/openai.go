package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIProvider talks to the OpenAI chat-completions wire format directly,
// with no litellm dependency in between. Selected via DefaultFactory under
// the "openai-direct" key for operators who want one fewer hop than the
// default litellm-routed Client.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIProvider builds an OpenAIProvider from cfg. cfg.BaseURL lets an
// OpenAI-compatible endpoint (Azure OpenAI, a local proxy, ...) stand in
// for api.openai.com.
func NewOpenAIProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	baseURL := "https://api.openai.com/v1"
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

// Complete issues a single chat-completions request and returns the first
// choice's message content.
func (p *OpenAIProvider) Complete(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	reqBody, err := json.Marshal(openAIChatRequest{
		Model: model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", ErrRequestFailed.WithDetails(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", ErrRequestFailed.WithDetails(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", ErrRequestFailed.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ErrResponseInvalid.WithDetails(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", ErrRequestFailed.WithDetails(fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}

	var result openAIChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", ErrResponseInvalid.WithDetails(err.Error())
	}
	if len(result.Choices) == 0 {
		return "", ErrResponseInvalid
	}
	return result.Choices[0].Message.Content, nil
}

// ID identifies this provider for routing/logging.
func (p *OpenAIProvider) ID() string { return "openai-direct" }

// Close is a no-op; the http.Client holds no resources worth releasing.
func (p *OpenAIProvider) Close() error { return nil }

func init() {
	DefaultFactory.Register("openai-direct", NewOpenAIProvider)
}
