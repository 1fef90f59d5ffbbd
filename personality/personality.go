// Package personality implements the Personality Analyzer (C3): for each
// participant with new messages this tick, it runs five independent,
// concurrent LLM calls (one per Big-Five trait) and updates the running
// personality cache and on-disk snapshot history.
//
// The concurrent-fan-out-with-per-index-result-slice shape is grounded on
// multi/modes.go's RunParallelWithOptions: a sync.WaitGroup plus pre-sized
// result/error slices indexed by goroutine, joined with wg.Wait() before
// any result is read.
package personality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	supervisor "github.com/kestrelhq/persona-supervisor"

	"github.com/kestrelhq/persona-supervisor/internal/schemabuilder"
	"github.com/kestrelhq/persona-supervisor/promptutil"
)

// Traits is the fixed Big-Five trait set analyzed every tick.
var Traits = []string{"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"}

// PerCallTimeout bounds a single trait's LLM call (spec §4.3).
const PerCallTimeout = 60 * time.Second

// DefaultModel is used when Options carries no override for the "personality" node.
const DefaultModel = "gpt-4o-mini"

// Analyzer is the C3 node.
type Analyzer struct {
	LLM      supervisor.LLMClient
	Memory   supervisor.MemoryStore
	Personas []supervisor.Persona
	Opts     supervisor.Options
}

// New builds an Analyzer.
func New(llm supervisor.LLMClient, memory supervisor.MemoryStore, personas []supervisor.Persona, opts supervisor.Options) *Analyzer {
	return &Analyzer{LLM: llm, Memory: memory, Personas: personas, Opts: opts}
}

// Analyze updates cache (user_id -> Big5) in place, writes a fresh snapshot
// to MemoryStore for every user that qualifies to save, and attaches
// sender_personality onto every message in messages authored by a user this
// call produced or already held a reading for. chatID scopes snapshot
// persistence. A failed trait call degrades to the previous-snapshot
// fallback or a skip per spec §4.3; a MemoryStore load or save error for
// any user is returned at once, and the remaining users are not analyzed.
func (a *Analyzer) Analyze(ctx context.Context, chatID string, messages []supervisor.Message, cache map[string]supervisor.Big5) error {
	if cache == nil {
		return fmt.Errorf("personality: cache must be non-nil")
	}

	byUser := groupUnprocessedBySender(messages, a.Personas)
	for userID, userMessages := range byUser {
		if err := a.analyzeUser(ctx, chatID, userID, userMessages, messages, cache); err != nil {
			return fmt.Errorf("personality: user %s: %w", userID, err)
		}
	}
	return nil
}

// groupUnprocessedBySender returns, for every non-agent sender with at least
// one unprocessed message, the full run of that sender's messages present
// in the window (used both to size the cumulative-count policy and to know
// which messages later get sender_personality attached).
func groupUnprocessedBySender(messages []supervisor.Message, personas []supervisor.Persona) map[string][]*supervisor.Message {
	hasUnprocessed := map[string]bool{}
	for i := range messages {
		m := &messages[i]
		if supervisor.IsAgentMessage(personas, *m) {
			continue
		}
		if !m.Processed {
			hasUnprocessed[m.SenderID] = true
		}
	}

	out := map[string][]*supervisor.Message{}
	for i := range messages {
		m := &messages[i]
		if supervisor.IsAgentMessage(personas, *m) {
			continue
		}
		if !hasUnprocessed[m.SenderID] {
			continue
		}
		out[m.SenderID] = append(out[m.SenderID], m)
	}
	return out
}

func (a *Analyzer) analyzeUser(ctx context.Context, chatID, userID string, userMessages []*supervisor.Message, allMessages []supervisor.Message, cache map[string]supervisor.Big5) error {
	previous, err := a.previousSnapshot(ctx, chatID, userID, cache)
	if err != nil {
		return err
	}

	if a.Opts.StopReanalysisWhenConfident && previous != nil && everyTraitConfident(previous, a.Opts.ConfidenceThresholds) {
		cache[userID] = previous
		attachPersonality(allMessages, userID, previous)
		return nil
	}

	cumulativeCount := len(userMessages)
	username := userMessages[0].SenderUsername

	results, errs := a.runTraitCalls(ctx, userMessages, previous)

	big5 := make(supervisor.Big5, len(Traits))
	missing := false
	for _, trait := range Traits {
		score, ok := results[trait]
		if !ok || errs[trait] != nil {
			if previous != nil {
				if prevScore, has := previous[trait]; has {
					big5[trait] = prevScore
					continue
				}
			}
			missing = true
			continue
		}
		big5[trait] = applyConfidencePenalty(score, cumulativeCount, a.Opts.ConfidencePenalty)
	}

	if missing && previous == nil {
		// No partial snapshots: this user is skipped entirely this tick.
		return nil
	}
	if missing {
		// A trait is missing from both this tick's results and the previous
		// snapshot: keep the whole previous snapshot, discarding fresh scores.
		big5 = previous
	}

	if cumulativeCount < a.Opts.MinMessagesForAnalysis {
		// Retain whatever was already cached; the freshly computed reading
		// is discarded without being persisted (spec §4.3).
		if previous != nil {
			cache[userID] = previous
			attachPersonality(allMessages, userID, previous)
		}
		return nil
	}

	cache[userID] = big5
	attachPersonality(allMessages, userID, big5)

	if a.Memory == nil {
		return nil
	}
	return a.saveSnapshot(ctx, chatID, userID, username, cumulativeCount, big5)
}

func (a *Analyzer) previousSnapshot(ctx context.Context, chatID, userID string, cache map[string]supervisor.Big5) (supervisor.Big5, error) {
	if cached, ok := cache[userID]; ok {
		return cached, nil
	}
	if a.Memory == nil {
		return nil, nil
	}
	rec, err := a.Memory.LoadParticipant(ctx, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if rec == nil || len(rec.PersonalitySnapshots) == 0 {
		return nil, nil
	}
	return rec.PersonalitySnapshots[0].PersonalityAnalysis.Big5, nil
}

func everyTraitConfident(big5 supervisor.Big5, thresholds map[string]float64) bool {
	if len(thresholds) == 0 {
		return false
	}
	for _, trait := range Traits {
		threshold, configured := thresholds[trait]
		if !configured {
			return false
		}
		score, ok := big5[trait]
		if !ok || score.Confidence < threshold {
			return false
		}
	}
	return true
}

func applyConfidencePenalty(score supervisor.TraitScore, count int, cfg supervisor.ConfidencePenaltyConfig) supervisor.TraitScore {
	if !cfg.Enabled || count >= cfg.MinMessagesFullConfidence {
		return score
	}
	raw := score.Confidence
	adjusted := raw - float64(cfg.MinMessagesFullConfidence-count)*cfg.PenaltyFactor
	if adjusted < 0 {
		adjusted = 0
	}
	score.RawConfidence = raw
	score.HasRawConfidence = true
	score.Confidence = adjusted
	return score
}

func attachPersonality(messages []supervisor.Message, userID string, big5 supervisor.Big5) {
	if big5 == nil {
		return
	}
	for i := range messages {
		if messages[i].SenderID == userID {
			messages[i].SenderPersonality = big5
		}
	}
}

func (a *Analyzer) saveSnapshot(ctx context.Context, chatID, userID, username string, count int, big5 supervisor.Big5) error {
	overall := 0.0
	for _, trait := range Traits {
		overall += big5[trait].Confidence
	}
	if len(Traits) > 0 {
		overall /= float64(len(Traits))
	}

	snapshot := supervisor.PersonalitySnapshot{
		AnalysisDate:          time.Now(),
		MessagesAnalyzedCount: count,
		OverallConfidence:     overall,
	}
	snapshot.PersonalityAnalysis.Big5 = big5

	rec, err := a.Memory.LoadParticipant(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if rec == nil {
		rec = &supervisor.ParticipantRecord{UserID: userID, Username: username}
	}
	rec.Username = username
	rec.PersonalitySnapshots = append([]supervisor.PersonalitySnapshot{snapshot}, rec.PersonalitySnapshots...)

	if err := a.Memory.SaveParticipant(ctx, chatID, *rec); err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

// runTraitCalls launches one independent LLM call per trait, each bounded by
// its own PerCallTimeout, and joins on a WaitGroup before returning.
func (a *Analyzer) runTraitCalls(ctx context.Context, userMessages []*supervisor.Message, previous supervisor.Big5) (map[string]traitResult, map[string]error) {
	results := make([]traitResult, len(Traits))
	errs := make([]error, len(Traits))

	var wg sync.WaitGroup
	for i, trait := range Traits {
		wg.Add(1)
		go func(idx int, trait string) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, PerCallTimeout)
			defer cancel()
			var prev *supervisor.TraitScore
			if previous != nil {
				if score, ok := previous[trait]; ok {
					prev = &score
				}
			}
			result, err := a.callTrait(callCtx, trait, userMessages, prev)
			results[idx] = result
			errs[idx] = err
		}(i, trait)
	}
	wg.Wait()

	resultsByTrait := make(map[string]traitResult, len(Traits))
	errsByTrait := make(map[string]error, len(Traits))
	for i, trait := range Traits {
		if errs[i] == nil {
			resultsByTrait[trait] = results[i]
		}
		errsByTrait[trait] = errs[i]
	}
	return resultsByTrait, errsByTrait
}

type traitResult = supervisor.TraitScore

func (a *Analyzer) callTrait(ctx context.Context, trait string, userMessages []*supervisor.Message, previous *supervisor.TraitScore) (traitResult, error) {
	model := DefaultModel
	if cfg, ok := a.Opts.NodeModels["personality"]; ok && cfg.Model != "" {
		model = cfg.Model
	}

	system := traitSystemPrompt(trait)
	user := traitUserPrompt(userMessages, previous)

	content, err := a.LLM.Complete(ctx, system, user, model, 0.1)
	if err != nil {
		return traitResult{}, fmt.Errorf("llm call: %w", err)
	}
	return decodeTraitResponse(content)
}

type traitEnvelope struct {
	Score         int     `json:"score"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
	Changed       bool    `json:"changed"`
	ChangeReason  string  `json:"change_reason"`
}

func decodeTraitResponse(content string) (traitResult, error) {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	candidate := extractJSONCandidate(trimmed, '{', '}')
	if candidate == "" {
		candidate = trimmed
	}
	if candidate == "" || !json.Valid([]byte(candidate)) {
		return traitResult{}, fmt.Errorf("invalid JSON trait response")
	}
	if err := schemabuilder.Validate(traitSchema, []byte(candidate)); err != nil {
		return traitResult{}, fmt.Errorf("trait response failed schema validation: %w", err)
	}
	var env traitEnvelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil {
		return traitResult{}, fmt.Errorf("decode trait response: %w", err)
	}
	if env.Score < 1 || env.Score > 5 {
		return traitResult{}, fmt.Errorf("trait score %d out of range", env.Score)
	}
	return traitResult{
		Score:         env.Score,
		Confidence:    env.Confidence,
		Justification: env.Justification,
	}, nil
}

func extractJSONCandidate(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	last := strings.LastIndex(trimmed, "```")
	if last <= 0 {
		return trimmed
	}
	return strings.TrimSpace(trimmed[3:last])
}

func traitSystemPrompt(trait string) string {
	return fmt.Sprintf(
		"You are a personality analyst inferring the Big-Five trait %q for one chat "+
			"participant from their recent messages. Respond with strict JSON only, no "+
			"commentary, matching this schema: %s", trait, traitSchemaDescription())
}

var traitShape = schemabuilder.Object(
	schemabuilder.Property("score", schemabuilder.Int("integer 1-5, this trait's level")).Required(),
	schemabuilder.Property("confidence", schemabuilder.Number("0.0-1.0 confidence in this score")).Required(),
	schemabuilder.Property("justification", schemabuilder.String("one sentence explaining the score")).Required(),
	schemabuilder.Property("changed", schemabuilder.Bool("true if this score differs from the previous analysis")),
	schemabuilder.Property("change_reason", schemabuilder.String("why the score changed, if it did")),
)

var traitSchema = schemabuilder.MustCompile("personality-trait-response", traitShape)

func traitSchemaDescription() string {
	encoded, err := json.Marshal(traitShape)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func traitUserPrompt(userMessages []*supervisor.Message, previous *supervisor.TraitScore) string {
	lines := make([]string, 0, len(userMessages))
	for _, m := range userMessages {
		lines = append(lines, promptutil.FormatMessage(*m, supervisor.Persona{}, nil))
	}

	var b strings.Builder
	b.WriteString("Recent messages from this participant:\n")
	b.WriteString(strings.Join(lines, "\n"))
	if previous != nil {
		fmt.Fprintf(&b, "\n\nPrevious analysis: score=%d confidence=%.2f justification=%q. "+
			"State whether your new score differs (\"changed\") and why (\"change_reason\").",
			previous.Score, previous.Confidence, previous.Justification)
	}
	return b.String()
}
