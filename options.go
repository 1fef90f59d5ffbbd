package supervisor

import "time"

// Options holds the well-known configuration surface from spec §6. It is
// built by ConfigStore implementations and consulted by every component;
// the functional-options constructors below let callers override defaults
// in code (tests, CLI flags) without hand-building the struct.
type Options struct {
	ChatID string

	MessageCheckInterval time.Duration
	TelegramFetchLimit   int
	MaxRecentMessages    int
	MaxInitialActionsPerAgent int

	HITLEnabled bool

	MinMessagesForAnalysis int
	ConfidenceThresholds   map[string]float64
	ConfidencePenalty      ConfidencePenaltyConfig
	StopReanalysisWhenConfident bool

	Agents []AgentConfig

	NodeModels map[string]ModelConfig // node name -> model config

	// ExecutorCooldown paces consecutive sends when more than one action is
	// dispatched in a tick (spec §4.8, §9 open question: preserved as a
	// configurable default rather than a hardcoded constant).
	ExecutorCooldown time.Duration

	// TypingSleepDivisor reproduces the intentional sub-duration typing
	// sleep (duration/750, not /1000); kept configurable per spec §9.
	TypingSleepDivisor int
}

// ConfidencePenaltyConfig is personality_analysis.message_count_confidence_penalty.
type ConfidencePenaltyConfig struct {
	Enabled                bool
	MinMessagesFullConfidence int
	PenaltyFactor          float64
}

// AgentConfig is one entry of the agents[] configuration list.
type AgentConfig struct {
	Name       string
	Type       string
	AgentGoal  string
	PersonaFile string
	Username   string
}

// ModelConfig is the per-node model configuration plus env-var overrides.
type ModelConfig struct {
	Model       string
	Temperature float64
	Provider    string
}

// Option configures Options via functional options.
type Option func(*Options)

// DefaultOptions returns the documented defaults from spec §6/§9.
func DefaultOptions() Options {
	return Options{
		MessageCheckInterval:      30 * time.Second,
		TelegramFetchLimit:        100,
		MaxRecentMessages:         50,
		MaxInitialActionsPerAgent: 5,
		HITLEnabled:               false,
		MinMessagesForAnalysis:    3,
		ConfidenceThresholds:      map[string]float64{},
		ConfidencePenalty: ConfidencePenaltyConfig{
			Enabled:                   true,
			MinMessagesFullConfidence: 15,
			PenaltyFactor:             0.03,
		},
		StopReanalysisWhenConfident: true,
		NodeModels:                  map[string]ModelConfig{},
		ExecutorCooldown:            160 * time.Second,
		TypingSleepDivisor:          750,
	}
}

func ApplyOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func WithChatID(id string) Option {
	return func(o *Options) { o.ChatID = id }
}

func WithMessageCheckInterval(d time.Duration) Option {
	return func(o *Options) { o.MessageCheckInterval = d }
}

func WithTelegramFetchLimit(n int) Option {
	return func(o *Options) {
		if n > 1000 {
			n = 1000
		}
		o.TelegramFetchLimit = n
	}
}

func WithMaxRecentMessages(n int) Option {
	return func(o *Options) { o.MaxRecentMessages = n }
}

func WithHITLEnabled(enabled bool) Option {
	return func(o *Options) { o.HITLEnabled = enabled }
}

func WithAgents(agents ...AgentConfig) Option {
	return func(o *Options) { o.Agents = append(o.Agents, agents...) }
}

func WithNodeModel(node string, cfg ModelConfig) Option {
	return func(o *Options) {
		if o.NodeModels == nil {
			o.NodeModels = map[string]ModelConfig{}
		}
		o.NodeModels[node] = cfg
	}
}

func WithExecutorCooldown(d time.Duration) Option {
	return func(o *Options) { o.ExecutorCooldown = d }
}

func WithTypingSleepDivisor(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = 750
		}
		o.TypingSleepDivisor = n
	}
}

func WithConfidencePenalty(cfg ConfidencePenaltyConfig) Option {
	return func(o *Options) { o.ConfidencePenalty = cfg }
}
