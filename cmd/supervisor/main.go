// Command supervisor runs one chat's multi-persona conversational
// supervisor: load configuration, wire every capability (transport, LLM,
// memory, HITL, checkpointing, observability), and drive the run loop
// until interrupted.
//
// Wiring style grounded on nevindra-oasis's cmd/oasis/main.go: a flat
// main() reading configuration from flags/env, constructing one
// functional-option-free object graph by hand, and deriving a cancelable
// context from os/signal.NotifyContext for graceful shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kestrelhq/persona-supervisor/checkpoint"
	"github.com/kestrelhq/persona-supervisor/chattransport"
	"github.com/kestrelhq/persona-supervisor/configstore"
	"github.com/kestrelhq/persona-supervisor/emotion"
	"github.com/kestrelhq/persona-supervisor/executor"
	"github.com/kestrelhq/persona-supervisor/graph"
	"github.com/kestrelhq/persona-supervisor/hitl"
	"github.com/kestrelhq/persona-supervisor/llm"
	"github.com/kestrelhq/persona-supervisor/memory"
	"github.com/kestrelhq/persona-supervisor/observer"
	"github.com/kestrelhq/persona-supervisor/persona"
	"github.com/kestrelhq/persona-supervisor/personality"
	"github.com/kestrelhq/persona-supervisor/poller"
	"github.com/kestrelhq/persona-supervisor/runner"
	"github.com/kestrelhq/persona-supervisor/subgraph"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

func main() {
	configDir := flag.String("config", "./config", "directory holding supervisor.yaml, personas/, triggers/, actions/")
	transportURL := flag.String("transport-url", os.Getenv("CHAT_TRANSPORT_URL"), "base URL of the chat transport HTTP API")
	llmBackend := flag.String("llm-backend", envOr("LLM_BACKEND", "litellm"), "llm client backend: litellm (default), openai-direct, or bedrock")
	llmProvider := flag.String("llm-provider", envOr("LLM_PROVIDER", "openai"), "litellm wire protocol, used only when -llm-backend=litellm")
	llmBaseURL := flag.String("llm-base-url", os.Getenv("LLM_BASE_URL"), "override LLM provider base URL")
	postgresDSN := flag.String("memory-dsn", os.Getenv("MEMORY_DATABASE_URL"), "Postgres DSN for MemoryStore (falls back to a file store under <config>/data when empty)")
	checkpointDir := flag.String("checkpoint-dir", "", "checkpoint storage directory (defaults to <config>/checkpoints)")
	approvalDir := flag.String("approval-dir", "", "HITL approval IPC directory (defaults to <config>/approvals)")
	adminAddr := flag.String("admin-addr", "", "optional admin HTTP listen address (requires the gin_admin build tag)")
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := configstore.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	opts := cfg.Options()
	if opts.ChatID == "" {
		log.Fatal().Msg("telegram.chat_id is not set in config")
	}

	ctx := context.Background()
	personas, err := cfg.LoadPersonas(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load personas")
	}
	if _, err := persona.NewRegistryFromSlice(personas); err != nil {
		log.Fatal().Err(err).Msg("persona catalog failed validation")
	}

	if *transportURL == "" {
		log.Fatal().Msg("transport-url (or CHAT_TRANSPORT_URL) is required")
	}
	transport := chattransport.New(*transportURL)

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("LLM_API_KEY is required")
	}
	llmCfg := llm.Config{
		ProviderType: *llmProvider,
		APIKey:       apiKey,
		BaseURL:      *llmBaseURL,
		DefaultModel: modelFor(opts, "default", "gpt-4o-mini"),
	}
	var llmClient *llm.Client
	if *llmBackend == "litellm" {
		llmClient, err = llm.NewDefaultClient(llmCfg)
	} else {
		llmClient, err = llm.NewFactoryClient(*llmBackend, llmCfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("construct llm client")
	}

	memStore, err := buildMemoryStore(ctx, *postgresDSN, *configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("construct memory store")
	}

	if *checkpointDir == "" {
		*checkpointDir = filepath.Join(*configDir, "checkpoints")
	}
	fileCheckpointer, err := checkpoint.NewFileCheckpointer(*checkpointDir)
	if err != nil {
		log.Fatal().Err(err).Msg("construct checkpointer")
	}
	checkpointer := graph.NewCheckpointAdapter(fileCheckpointer)

	if *approvalDir == "" {
		*approvalDir = filepath.Join(*configDir, "approvals")
	}
	approvalStore, err := hitl.NewFileApprovalStore(*approvalDir)
	if err != nil {
		log.Fatal().Err(err).Msg("construct approval store")
	}
	manager := hitl.NewManager(approvalStore, hitl.DefaultPollInterval)
	gate := hitl.NewGate(opts.HITLEnabled, manager)

	obs := observer.NewComposite(
		observer.NewZerologObserver(log),
		observer.NewJSONObserver(nil),
	)

	startAdminServer(*adminAddr, approvalStore, log)

	emotionAnalyzer := emotion.New(llmClient, modelFor(opts, "emotion", emotion.DefaultModel))
	personalityAnalyzer := personality.New(llmClient, memStore, personas, opts)
	sub := subgraph.New(llmClient, obs, opts)
	exec := executor.New(transport, obs, opts)

	g := graph.New(cfg, memStore, emotionAnalyzer, personalityAnalyzer, sub, gate, exec, checkpointer, obs, opts)

	fetchLimit := opts.TelegramFetchLimit
	p := poller.New(transport, personas, fetchLimit)
	ring := supervisor.NewSeenIDRing(1000)

	r := runner.New(opts.ChatID, "", transport, p, g, memStore, obs, opts, ring)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().Str("chat_id", opts.ChatID).Int("personas", len(personas)).Msg("supervisor starting")
	if err := r.Run(runCtx); err != nil {
		log.Fatal().Err(err).Msg("supervisor exited with error")
	}
	log.Info().Msg("supervisor shut down")
}

func buildMemoryStore(ctx context.Context, dsn, configDir string) (supervisor.MemoryStore, error) {
	if dsn != "" {
		return memory.NewPostgresStore(ctx, dsn)
	}
	return memory.NewFileStore(filepath.Join(configDir, "data"))
}

func modelFor(opts supervisor.Options, node, fallback string) string {
	if m, ok := opts.NodeModels[node]; ok && m.Model != "" {
		return m.Model
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
