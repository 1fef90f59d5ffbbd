// Package llm provides supervisor.LLMClient implementations: a primary
// litellm-backed multi-provider client, and (behind the "bedrock" build
// tag) a direct AWS Bedrock backend.
package llm

import "context"

// Provider is one named LLM backend. A Client multiplexes across
// providers keyed by the model string's provider prefix so a single
// Complete call can route "openai:gpt-4.1-mini" and "anthropic:claude-
// 4-sonnet" to different wire protocols without the caller knowing.
type Provider interface {
	ID() string
	Complete(ctx context.Context, system, user, model string, temperature float64) (string, error)
	Close() error
}

// Config configures one Provider construction.
type Config struct {
	ProviderType string
	APIKey       string
	BaseURL      string
	DefaultModel string
	Extra        map[string]string
}

// Factory builds a Provider by type name, registered by each backend's
// init-time or explicit Register call (bedrock.go registers "bedrock" when
// built with the bedrock tag; the litellm backend is not registered in any
// Factory).
type Factory struct {
	providers map[string]func(Config) (Provider, error)
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{providers: make(map[string]func(Config) (Provider, error))}
}

// DefaultFactory is the process-wide registry of Provider backends
// selectable independently of litellm: "openai-direct" (openai.go, always
// built) and "bedrock" (bedrock.go, only when built with the bedrock tag).
// NewFactoryClient builds a Client from it; the common case of a single
// litellm-routed backend should still use NewDefaultClient.
var DefaultFactory = NewFactory()

// NewFactoryClient builds a Client around the named DefaultFactory backend
// ("openai-direct", or "bedrock" when built with that tag).
func NewFactoryClient(backend string, cfg Config) (*Client, error) {
	cfg.ProviderType = backend
	p, err := DefaultFactory.Create(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(p), nil
}

// Register associates a provider type name with its constructor.
func (f *Factory) Register(providerType string, creator func(Config) (Provider, error)) {
	f.providers[providerType] = creator
}

// Create builds the named provider, or ErrProviderNotSupported.
func (f *Factory) Create(cfg Config) (Provider, error) {
	creator, ok := f.providers[cfg.ProviderType]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return creator(cfg)
}

var (
	ErrProviderNotSupported = LLMError{Code: "provider_not_supported", Message: "llm provider not supported"}
	ErrAPIKeyNotSet         = LLMError{Code: "api_key_not_set", Message: "api key not set"}
	ErrRequestFailed        = LLMError{Code: "request_failed", Message: "request to llm provider failed"}
	ErrResponseInvalid      = LLMError{Code: "response_invalid", Message: "invalid response from llm provider"}
)

// LLMError is a structured provider-level failure, distinguishable by Code.
type LLMError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e LLMError) Error() string { return e.Message }

// WithDetails returns a copy of e carrying the given detail string.
func (e LLMError) WithDetails(details string) LLMError {
	e.Details = details
	return e
}

// Client routes Complete calls to one of several registered providers by
// model-name prefix ("provider:model"), falling back to a default
// provider when the model carries no prefix. It satisfies
// github.com/kestrelhq/persona-supervisor.LLMClient.
type Client struct {
	def       Provider
	providers map[string]Provider
}

// NewClient returns a Client whose default provider is def; additional
// providers can be registered for explicit "name:model" routing.
func NewClient(def Provider) *Client {
	return &Client{def: def, providers: make(map[string]Provider)}
}

// WithProvider registers an additional named provider for routing.
func (c *Client) WithProvider(name string, p Provider) *Client {
	c.providers[name] = p
	return c
}

// Complete implements supervisor.LLMClient.
func (c *Client) Complete(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	provider, resolvedModel := c.resolve(model)
	if provider == nil {
		return "", ErrNoProviderConfigured
	}
	return provider.Complete(ctx, system, user, resolvedModel, temperature)
}

func (c *Client) resolve(model string) (Provider, string) {
	for prefix, p := range c.providers {
		if len(model) > len(prefix)+1 && model[:len(prefix)+1] == prefix+":" {
			return p, model[len(prefix)+1:]
		}
	}
	return c.def, model
}

// ErrNoProviderConfigured is returned when a Client has no default and no
// prefix in the requested model matched a registered provider.
var ErrNoProviderConfigured = LLMError{Code: "no_provider_configured", Message: "no llm provider configured"}

// Close closes every registered provider, returning the first error.
func (c *Client) Close() error {
	var first error
	if c.def != nil {
		if err := c.def.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
