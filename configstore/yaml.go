// Package configstore implements supervisor.ConfigStore: supervisor.yaml
// (or .toml) for well-known options, JSON catalogs for personas/triggers/
// actions, and prompt template files, grounded on bitop-dev-agent's
// YAML-config-loading style and validated with jsonschema/v6.
package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v6"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// FileStore is the default ConfigStore: a directory tree of
// supervisor.yaml (or supervisor.toml when no supervisor.yaml exists),
// personas/*.json, triggers/<persona>.json, actions/<persona>.json, and
// prompts/*.txt.
type FileStore struct {
	dir     string
	options supervisor.Options
}

// fileConfig is the YAML/TOML shape of the well-known options (spec §6),
// expanded with ${ENV_VAR} references before parsing.
type fileConfig struct {
	Telegram struct {
		ChatID string `yaml:"chat_id" toml:"chat_id"`
	} `yaml:"telegram" toml:"telegram"`
	Polling struct {
		MessageCheckIntervalSeconds int `yaml:"message_check_interval_seconds" toml:"message_check_interval_seconds"`
		TelegramFetchLimit          int `yaml:"telegram_fetch_limit" toml:"telegram_fetch_limit"`
		MaxRecentMessages           int `yaml:"max_recent_messages" toml:"max_recent_messages"`
		MaxInitialActionsPerAgent   int `yaml:"max_initial_actions_per_agent" toml:"max_initial_actions_per_agent"`
	} `yaml:"polling" toml:"polling"`
	HITL struct {
		Enabled bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"hitl" toml:"hitl"`
	PersonalityAnalysis struct {
		MinMessagesForAnalysis    int                `yaml:"min_messages_for_analysis" toml:"min_messages_for_analysis"`
		ConfidenceThresholds      map[string]float64 `yaml:"confidence_thresholds" toml:"confidence_thresholds"`
		StopReanalysisWhenConfident bool             `yaml:"stop_reanalysis_when_confident" toml:"stop_reanalysis_when_confident"`
		MessageCountConfidencePenalty struct {
			Enabled                   bool    `yaml:"enabled" toml:"enabled"`
			MinMessagesFullConfidence int     `yaml:"min_messages_full_confidence" toml:"min_messages_full_confidence"`
			PenaltyFactor             float64 `yaml:"penalty_factor" toml:"penalty_factor"`
		} `yaml:"message_count_confidence_penalty" toml:"message_count_confidence_penalty"`
	} `yaml:"personality_analysis" toml:"personality_analysis"`
	Agents []struct {
		Name       string `yaml:"name" toml:"name"`
		Type       string `yaml:"type" toml:"type"`
		AgentGoal  string `yaml:"agent_goal" toml:"agent_goal"`
		PersonaFile string `yaml:"persona_file" toml:"persona_file"`
		Username   string `yaml:"username" toml:"username"`
	} `yaml:"agents" toml:"agents"`
	Models map[string]struct {
		Model       string  `yaml:"model" toml:"model"`
		Temperature float64 `yaml:"temperature" toml:"temperature"`
		Provider    string  `yaml:"provider" toml:"provider"`
	} `yaml:"models" toml:"models"`
}

// Load builds a FileStore from dir, reading "supervisor.yaml" or
// "supervisor.toml" (yaml preferred if both exist) and ".env" for per-node
// model overrides. It reads and validates no catalog file; personas,
// triggers and actions are read later by LoadPersonas/LoadTriggers/
// LoadActions.
func Load(dir string) (*FileStore, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env")) // optional; missing file is not an error

	opts, err := loadOptions(dir)
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, options: opts}, nil
}

func loadOptions(dir string) (supervisor.Options, error) {
	yamlPath := filepath.Join(dir, "supervisor.yaml")
	tomlPath := filepath.Join(dir, "supervisor.toml")

	var raw []byte
	var err error
	var asTOML bool

	if raw, err = os.ReadFile(yamlPath); err != nil {
		if raw, err = os.ReadFile(tomlPath); err != nil {
			return supervisor.Options{}, fmt.Errorf("configstore: no supervisor.yaml or supervisor.toml in %s", dir)
		}
		asTOML = true
	}

	var fc fileConfig
	expanded := os.ExpandEnv(string(raw))
	if asTOML {
		if err := loadTOML([]byte(expanded), &fc); err != nil {
			return supervisor.Options{}, supervisor.WrapConfigError(err, "parse supervisor.toml")
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
			return supervisor.Options{}, supervisor.WrapConfigError(err, "parse supervisor.yaml")
		}
	}

	opts := supervisor.DefaultOptions()
	opts.ChatID = fc.Telegram.ChatID
	if fc.Polling.MessageCheckIntervalSeconds > 0 {
		opts.MessageCheckInterval = time.Duration(fc.Polling.MessageCheckIntervalSeconds) * time.Second
	}
	if fc.Polling.TelegramFetchLimit > 0 {
		opts.TelegramFetchLimit = fc.Polling.TelegramFetchLimit
	}
	if fc.Polling.MaxRecentMessages > 0 {
		opts.MaxRecentMessages = fc.Polling.MaxRecentMessages
	}
	if fc.Polling.MaxInitialActionsPerAgent > 0 {
		opts.MaxInitialActionsPerAgent = fc.Polling.MaxInitialActionsPerAgent
	}
	opts.HITLEnabled = fc.HITL.Enabled
	if fc.PersonalityAnalysis.MinMessagesForAnalysis > 0 {
		opts.MinMessagesForAnalysis = fc.PersonalityAnalysis.MinMessagesForAnalysis
	}
	if len(fc.PersonalityAnalysis.ConfidenceThresholds) > 0 {
		opts.ConfidenceThresholds = fc.PersonalityAnalysis.ConfidenceThresholds
	}
	opts.StopReanalysisWhenConfident = fc.PersonalityAnalysis.StopReanalysisWhenConfident
	if p := fc.PersonalityAnalysis.MessageCountConfidencePenalty; p.MinMessagesFullConfidence > 0 {
		opts.ConfidencePenalty = supervisor.ConfidencePenaltyConfig{
			Enabled:                   p.Enabled,
			MinMessagesFullConfidence: p.MinMessagesFullConfidence,
			PenaltyFactor:             p.PenaltyFactor,
		}
	}

	for _, a := range fc.Agents {
		opts.Agents = append(opts.Agents, supervisor.AgentConfig{
			Name: a.Name, Type: a.Type, AgentGoal: a.AgentGoal,
			PersonaFile: a.PersonaFile, Username: a.Username,
		})
	}
	for node, m := range fc.Models {
		opts.NodeModels[node] = supervisor.ModelConfig{Model: m.Model, Temperature: m.Temperature, Provider: m.Provider}
		if envModel := os.Getenv(strings.ToUpper(node) + "_MODEL"); envModel != "" {
			cfg := opts.NodeModels[node]
			cfg.Model = envModel
			opts.NodeModels[node] = cfg
		}
	}

	return opts, nil
}

// Options implements supervisor.ConfigStore.
func (s *FileStore) Options() supervisor.Options { return s.options }

// LoadPersonas reads personas/*.json, one persona file per entry in
// options.Agents, and validates each against schemas/persona.schema.json
// when that file exists (validation is skipped when it is absent).
func (s *FileStore) LoadPersonas(ctx context.Context) ([]supervisor.Persona, error) {
	sch, err := loadSchema(filepath.Join(s.dir, "schemas", "persona.schema.json"))
	if err != nil {
		return nil, err
	}

	personas := make([]supervisor.Persona, 0, len(s.options.Agents))
	for _, a := range s.options.Agents {
		raw, err := os.ReadFile(filepath.Join(s.dir, "personas", a.PersonaFile))
		if err != nil {
			return nil, supervisor.WrapConfigError(err, "read persona file "+a.PersonaFile)
		}
		if sch != nil {
			inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				return nil, supervisor.WrapConfigError(err, "decode persona file "+a.PersonaFile)
			}
			if err := sch.Validate(inst); err != nil {
				return nil, supervisor.WrapConfigError(err, "validate persona file "+a.PersonaFile)
			}
		}

		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, supervisor.WrapConfigError(err, "decode persona file "+a.PersonaFile)
		}

		personas = append(personas, supervisor.Persona{
			Name: a.Name, Type: a.Type, AgentGoal: a.AgentGoal,
			PersonaFile: a.PersonaFile, Username: a.Username,
			Prompt: body.Prompt,
		})
	}
	return personas, nil
}

// LoadTriggers reads <dir>/triggers/<persona>.json.
func (s *FileStore) LoadTriggers(ctx context.Context, persona string) ([]supervisor.TriggerDef, error) {
	var triggers []supervisor.TriggerDef
	if err := s.readJSON(filepath.Join("triggers", persona+".json"), &triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

// LoadActions reads <dir>/actions/<persona>.json.
func (s *FileStore) LoadActions(ctx context.Context, persona string) ([]supervisor.ActionDef, error) {
	var actions []supervisor.ActionDef
	if err := s.readJSON(filepath.Join("actions", persona+".json"), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// LoadPromptTemplate reads a prompt template file relative to dir/prompts.
func (s *FileStore) LoadPromptTemplate(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, "prompts", path))
	if err != nil {
		return "", supervisor.WrapConfigError(err, "read prompt template "+path)
	}
	return string(raw), nil
}

func (s *FileStore) readJSON(rel string, v any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, rel))
	if err != nil {
		return supervisor.WrapConfigError(err, "read "+rel)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return supervisor.WrapConfigError(err, "decode "+rel)
	}
	return nil
}

func loadSchema(path string) (*jsonschema.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil // schema optional; validation skipped if absent
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("configstore: unmarshal schema %s: %w", path, err)
	}
	c := jsonschema.NewCompiler()
	url := "mem://configstore/" + filepath.Base(path)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("configstore: add schema resource %s: %w", path, err)
	}
	return c.Compile(url)
}
