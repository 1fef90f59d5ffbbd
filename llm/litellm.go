package llm

import (
	"context"
	"fmt"

	"github.com/voocel/litellm"
	"github.com/voocel/litellm/providers"
)

// LiteLLMProvider adapts voocel/litellm to the Provider interface. This is
// the primary LLM backend: a single wire client that can talk to
// OpenAI/Anthropic/Gemini-compatible endpoints depending on how it was
// constructed.
type LiteLLMProvider struct {
	id     string
	client *litellm.Client
}

// NewLiteLLMProvider builds a litellm-backed Provider from cfg. ProviderType
// selects the wire protocol ("openai", "anthropic", "gemini"). DefaultModel
// is not read: Complete passes its model argument to litellm unchanged,
// including an empty one.
func NewLiteLLMProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	pcfg := providers.ProviderConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}

	var p providers.Provider
	switch cfg.ProviderType {
	case "anthropic":
		p = providers.NewAnthropic(pcfg)
	case "gemini", "google":
		p = providers.NewGemini(pcfg)
	case "openai", "":
		p = providers.NewOpenAI(pcfg)
	default:
		p = providers.NewOpenAI(pcfg)
	}

	client, err := litellm.New(p)
	if err != nil {
		return nil, ErrRequestFailed.WithDetails(err.Error())
	}

	return &LiteLLMProvider{id: cfg.ProviderType, client: client}, nil
}

// Complete builds a two-message (system, user) request and returns the
// model's text content. Callers needing conversation history format it
// into the user string themselves (see promptutil).
func (l *LiteLLMProvider) Complete(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	temp := temperature
	req := &litellm.Request{
		Model: model,
		Messages: []litellm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: &temp,
	}

	resp, err := l.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: litellm chat: %w", err)
	}
	if resp == nil {
		return "", ErrResponseInvalid
	}
	return resp.Content, nil
}

// ID returns the configured wire-protocol name ("openai", "anthropic", ...).
func (l *LiteLLMProvider) ID() string { return l.id }

// Close releases the underlying litellm client's resources, if any.
func (l *LiteLLMProvider) Close() error { return nil }

// NewDefaultClient builds a Client around a single litellm-backed provider
// for cfg.ProviderType ("openai"/"anthropic"/"gemini"), the common case of
// one configured backend.
func NewDefaultClient(cfg Config) (*Client, error) {
	p, err := NewLiteLLMProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(p), nil
}
