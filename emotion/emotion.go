// Package emotion implements the Emotion Analyzer (C2): one LLM call that
// annotates every unclassified message in recent_messages with an emotion
// and justification, and writes the group's overall sentiment.
package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	supervisor "github.com/kestrelhq/persona-supervisor"

	"github.com/kestrelhq/persona-supervisor/internal/schemabuilder"
	"github.com/kestrelhq/persona-supervisor/promptutil"
)

// DefaultModel is used when the caller does not override it.
const DefaultModel = "gpt-4o-mini"

// ErrorEmotion/ErrorSentiment are the sentinel values written when the LLM
// response can't be parsed as valid JSON even after a retry (spec §4.2).
const (
	ErrorEmotion  = "ERROR"
	ErrorSentiment = "ERROR: emotion analysis failed"
)

// Analyzer is the C2 node. It holds no per-call state; everything it needs
// arrives through Analyze's arguments.
type Analyzer struct {
	LLM   supervisor.LLMClient
	Model string
}

// New builds an Analyzer. model falls back to DefaultModel when empty.
func New(llm supervisor.LLMClient, model string) *Analyzer {
	if model == "" {
		model = DefaultModel
	}
	return &Analyzer{LLM: llm, Model: model}
}

type messageEmotionResult struct {
	MessageID     string `json:"message_id"`
	Emotion       string `json:"emotion"`
	Justification string `json:"justification"`
}

type envelope struct {
	MessageEmotions []messageEmotionResult `json:"message_emotions"`
	GroupSentiment  string                  `json:"group_sentiment"`
}

// Analyze mutates messages in place, filling MessageEmotion on every entry
// that is still unclassified, and returns the group's overall sentiment.
// It is a no-op (returns the state's existing sentiment) when nothing is
// unclassified, matching spec §4.2's contract.
func (a *Analyzer) Analyze(ctx context.Context, messages []supervisor.Message, personas []supervisor.Persona, currentSentiment string) (string, error) {
	unclassified := make([]*supervisor.Message, 0, len(messages))
	for i := range messages {
		if messages[i].IsUnclassified() {
			unclassified = append(unclassified, &messages[i])
		}
	}
	if len(unclassified) == 0 {
		return currentSentiment, nil
	}

	system := systemPrompt()
	user := userPrompt(unclassified, personas)

	env, err := a.complete(ctx, system, user)
	if err != nil {
		env, err = a.complete(ctx, system, user)
	}
	if err != nil {
		applyErrorFallback(unclassified)
		return ErrorSentiment, nil
	}

	byID := make(map[string]messageEmotionResult, len(env.MessageEmotions))
	for _, r := range env.MessageEmotions {
		byID[r.MessageID] = r
	}
	for _, m := range unclassified {
		r, ok := byID[m.MessageID]
		if !ok || r.Emotion == "" {
			m.MessageEmotion = &supervisor.MessageEmotion{Emotion: ErrorEmotion, Justification: "model did not return a classification for this message"}
			continue
		}
		m.MessageEmotion = &supervisor.MessageEmotion{Emotion: r.Emotion, Justification: r.Justification}
	}

	sentiment := strings.TrimSpace(env.GroupSentiment)
	if sentiment == "" {
		sentiment = currentSentiment
	}
	return sentiment, nil
}

func applyErrorFallback(unclassified []*supervisor.Message) {
	for _, m := range unclassified {
		m.MessageEmotion = &supervisor.MessageEmotion{Emotion: ErrorEmotion, Justification: "emotion analysis failed after retry"}
	}
}

func (a *Analyzer) complete(ctx context.Context, system, user string) (envelope, error) {
	content, err := a.LLM.Complete(ctx, system, user, a.Model, 0.2)
	if err != nil {
		return envelope{}, fmt.Errorf("emotion: llm call: %w", err)
	}
	env, ok := decodeEnvelope(content)
	if !ok {
		return envelope{}, fmt.Errorf("emotion: could not parse JSON response: %s", truncate(content, 200))
	}
	return env, nil
}

var responseShape = schemabuilder.Object(
	schemabuilder.Property("message_emotions", schemabuilder.Array("per-message emotion classifications", schemabuilder.Object(
		schemabuilder.Property("message_id", schemabuilder.String("the message_id being classified")).Required(),
		schemabuilder.Property("emotion", schemabuilder.String("a short emotion label, e.g. joy, frustration, neutral")).Required(),
		schemabuilder.Property("justification", schemabuilder.String("one sentence explaining the classification")).Required(),
	))).Required(),
	schemabuilder.Property("group_sentiment", schemabuilder.String("one sentence describing the overall mood of the conversation")).Required(),
)

var responseSchema = schemabuilder.MustCompile("emotion-response", responseShape)

// decodeEnvelope parses a strict-JSON emotion response, tolerating a
// fenced code block or surrounding prose around the JSON object. The
// candidate is checked against responseSchema before being unmarshaled, so
// a structurally-wrong-but-valid-JSON reply is rejected the same as
// malformed JSON (spec §4.2's retry-then-ERROR contract).
func decodeEnvelope(content string) (envelope, bool) {
	stripped := stripCodeFence(content)
	if env, ok := unmarshalEnvelope(stripped); ok {
		return env, true
	}
	if candidate := extractJSONCandidate(stripped, '{', '}'); candidate != "" {
		if env, ok := unmarshalEnvelope(candidate); ok {
			return env, true
		}
	}
	return envelope{}, false
}

func unmarshalEnvelope(content string) (envelope, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return envelope{}, false
	}
	if err := schemabuilder.Validate(responseSchema, []byte(trimmed)); err != nil {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || len(env.MessageEmotions) == 0 {
		return envelope{}, false
	}
	return env, true
}

// extractJSONCandidate finds the outermost open/close byte span in content,
// grounded on orchestrator.go's helper of the same name and signature.
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
	inner := strings.TrimSpace(trimmed[3:last])
	if nl := strings.Index(inner, "\n"); nl != -1 {
		firstLine := strings.TrimSpace(inner[:nl])
		if len(firstLine) > 0 && len(firstLine) < 12 && !strings.ContainsAny(firstLine, "{}[]\"") {
			inner = strings.TrimSpace(inner[nl+1:])
		}
	}
	return inner
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

func systemPrompt() string {
	return "You are the emotion analyzer for a multi-persona group chat supervisor. " +
		"Classify the emotional tone of each given message and the overall group sentiment. " +
		"Respond with strict JSON only, no commentary, matching this schema: " +
		schemaDescription()
}

func schemaDescription() string {
	encoded, err := json.Marshal(responseShape)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func userPrompt(unclassified []*supervisor.Message, personas []supervisor.Persona) string {
	lines := make([]string, 0, len(unclassified))
	for _, m := range unclassified {
		lines = append(lines, fmt.Sprintf("message_id=%s | %s", m.MessageID, promptutil.FormatMessage(*m, supervisor.Persona{}, personas)))
	}
	return "Classify the following messages:\n" + strings.Join(lines, "\n")
}
