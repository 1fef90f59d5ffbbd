// Package subgraph implements the Agent Subgraph (C4): the per-persona
// state machine that decides whether to intervene and, if so, drafts,
// styles, and validates a candidate message.
//
// The node-by-node loop, where every step returns control to a central
// dispatch point that decides the next step from the step's own output,
// is grounded on orchestrator/orchestrator.go's Run/plan/reflect loop:
// that orchestrator alternates "plan" and "reflect" steps driven by a
// Reflection.Done flag the same way this subgraph alternates pipeline
// nodes driven by AgentState.NextNode.
package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	supervisor "github.com/kestrelhq/persona-supervisor"

	"github.com/kestrelhq/persona-supervisor/internal/schemabuilder"
	"github.com/kestrelhq/persona-supervisor/promptutil"
)

// MaxRetries bounds the text_generator/styler/validator retry loop (spec §4.4).
const MaxRetries = 3

const (
	nodeEntry            = "entry"
	nodeTriggerAnalysis   = "trigger_analysis"
	nodeDecisionMaker     = "decision_maker"
	nodeTextGenerator     = "text_generator"
	nodeStyler            = "styler"
	nodeValidator         = "validator"
	nodeEnd               = "end"
)

// Subgraph runs one persona's trigger-analysis -> decision -> draft ->
// style -> validate pipeline for a single tick.
type Subgraph struct {
	LLM      supervisor.LLMClient
	Observer supervisor.Observer
	Opts     supervisor.Options
}

// New builds a Subgraph.
func New(llm supervisor.LLMClient, observer supervisor.Observer, opts supervisor.Options) *Subgraph {
	return &Subgraph{LLM: llm, Observer: observer, Opts: opts}
}

// Run drives state through every node until it reaches "end", always
// leaving state.SelectedAction populated with a terminal status (spec
// §4.4's invariant that node failures become a status, never an error
// return, so the supervisor graph never has to special-case this call).
func (s *Subgraph) Run(ctx context.Context, state *supervisor.AgentState) error {
	state.CurrentNode = nodeEntry
	for state.CurrentNode != nodeEnd {
		from := state.CurrentNode
		next, err := s.step(ctx, state)
		if err != nil {
			state.SelectedAction = errorAction(state, err)
			next = nodeEnd
		}
		if s.Observer != nil {
			s.Observer.OnNodeTransition(ctx, supervisor.DisplayName(state.SelectedPersona), from, next)
		}
		state.NextNode = next
		state.CurrentNode = next
	}
	if state.SelectedAction == nil {
		state.SelectedAction = errorAction(state, fmt.Errorf("subgraph: ended without a selected action"))
	}
	return nil
}

func (s *Subgraph) step(ctx context.Context, state *supervisor.AgentState) (string, error) {
	switch state.CurrentNode {
	case nodeEntry:
		return nodeTriggerAnalysis, nil
	case nodeTriggerAnalysis:
		return s.runTriggerAnalysis(ctx, state)
	case nodeDecisionMaker:
		return s.runDecisionMaker(ctx, state)
	case nodeTextGenerator:
		return s.runTextGenerator(ctx, state)
	case nodeStyler:
		return s.runStyler(ctx, state)
	case nodeValidator:
		return s.runValidator(ctx, state)
	default:
		return "", fmt.Errorf("subgraph: unknown node %q", state.CurrentNode)
	}
}

func errorAction(state *supervisor.AgentState, err error) *supervisor.SelectedAction {
	return &supervisor.SelectedAction{
		Status:      supervisor.StatusError,
		ValidationNote: err.Error(),
		AgentType:   state.AgentType,
		AgentName:   supervisor.DisplayName(state.SelectedPersona),
		PhoneNumber: state.SelectedPersona.PhoneNumber,
	}
}

func noActionNeeded(state *supervisor.AgentState) *supervisor.SelectedAction {
	return &supervisor.SelectedAction{
		Status:      supervisor.StatusNoActionNeeded,
		AgentType:   state.AgentType,
		AgentName:   supervisor.DisplayName(state.SelectedPersona),
		PhoneNumber: state.SelectedPersona.PhoneNumber,
	}
}

// --- trigger_analysis ---

type triggerEnvelope struct {
	ID             string                  `json:"id"`
	Justification  string                  `json:"justification"`
	TargetMessage  *supervisor.TargetMessage `json:"target_message,omitempty"`
}

func (s *Subgraph) runTriggerAnalysis(ctx context.Context, state *supervisor.AgentState) (string, error) {
	system := triggerSystemPrompt(state)
	user := transcriptPrompt(state)

	content, err := s.complete(ctx, "trigger_analysis", system, user)
	if err != nil {
		return "", err
	}
	env, ok := decodeJSONObject[triggerEnvelope](content, triggerSchema)
	if !ok {
		state.DetectedTrigger = &supervisor.DetectedTrigger{ID: supervisor.TriggerError, Justification: "could not parse trigger analysis response"}
		state.SelectedAction = errorAction(state, fmt.Errorf("trigger_analysis: invalid JSON response"))
		return nodeEnd, nil
	}

	state.DetectedTrigger = &supervisor.DetectedTrigger{ID: env.ID, Justification: env.Justification, TargetMessage: env.TargetMessage}

	switch {
	case env.ID == "" || env.ID == supervisor.TriggerNeutral:
		state.SelectedAction = noActionNeeded(state)
		return nodeEnd, nil
	case env.ID == supervisor.TriggerError:
		state.SelectedAction = errorAction(state, fmt.Errorf("trigger_analysis: model reported ERROR"))
		return nodeEnd, nil
	default:
		return nodeDecisionMaker, nil
	}
}

// --- decision_maker ---

type decisionEnvelope struct {
	ActionID string `json:"action_id"`
	Purpose  string `json:"purpose"`
}

func (s *Subgraph) runDecisionMaker(ctx context.Context, state *supervisor.AgentState) (string, error) {
	trigger := findTrigger(state.Triggers, state.DetectedTrigger.ID)
	suggested := suggestedActions(state.Actions, trigger)

	system := decisionSystemPrompt(state, suggested)
	user := transcriptPrompt(state)

	content, err := s.complete(ctx, "decision_maker", system, user)
	if err != nil {
		return "", err
	}
	env, ok := decodeJSONObject[decisionEnvelope](content, decisionSchema)
	if !ok || env.ActionID == "" {
		state.SelectedAction = noActionNeeded(state)
		return nodeEnd, nil
	}

	if !actionIDSuggested(suggested, env.ActionID) && s.Observer != nil {
		s.Observer.OnError(ctx, "decision_maker", fmt.Errorf("chosen action %q was not in the suggested set for trigger %q", env.ActionID, state.DetectedTrigger.ID))
	}

	state.SelectedAction = &supervisor.SelectedAction{
		ID:            env.ActionID,
		Purpose:       env.Purpose,
		TargetMessage: state.DetectedTrigger.TargetMessage,
		AgentType:     state.AgentType,
		AgentName:     supervisor.DisplayName(state.SelectedPersona),
		PhoneNumber:   state.SelectedPersona.PhoneNumber,
	}
	return nodeTextGenerator, nil
}

// --- text_generator ---

func (s *Subgraph) runTextGenerator(ctx context.Context, state *supervisor.AgentState) (string, error) {
	system := textGeneratorSystemPrompt(state)
	user := transcriptPrompt(state)
	if state.RetryCount > 0 && state.ValidationFeedback != "" {
		user = fmt.Sprintf("Your previous attempt was rejected:\n%q\nFeedback: %s\n\n%s",
			state.GeneratedResponse, state.ValidationFeedback, user)
	}

	content, err := s.complete(ctx, "text_generator", system, user)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		state.SelectedAction = errorAction(state, fmt.Errorf("text_generator: empty response"))
		return nodeEnd, nil
	}
	state.GeneratedResponse = content
	return nodeStyler, nil
}

// --- styler ---

func (s *Subgraph) runStyler(ctx context.Context, state *supervisor.AgentState) (string, error) {
	system := stylerSystemPrompt(state)
	user := fmt.Sprintf("Re-render this message in your voice, preserving its intent and content:\n%q\n\n%s",
		state.GeneratedResponse, transcriptPrompt(state))

	content, err := s.complete(ctx, "styler", system, user)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		state.SelectedAction = errorAction(state, fmt.Errorf("styler: empty response"))
		return nodeEnd, nil
	}
	state.StyledResponse = content
	return nodeValidator, nil
}

// --- validator ---

type validationEnvelope struct {
	Approved    bool   `json:"approved"`
	Explanation string `json:"explanation"`
}

func (s *Subgraph) runValidator(ctx context.Context, state *supervisor.AgentState) (string, error) {
	if state.RetryCount >= MaxRetries {
		// Fail-open: already retried the maximum number of times, so this
		// pass auto-approves the last revision rather than looping again,
		// but the outcome stays flagged rather than a clean success.
		state.Validation = &supervisor.ValidationResult{Approved: true, Explanation: "auto-approved after exhausting retries"}
		state.SelectedAction.Status = supervisor.StatusMaxRetriesReached
		state.SelectedAction.StyledResponse = state.StyledResponse
		state.SelectedAction.ValidationNote = state.Validation.Explanation
		state.RetryCount = 0
		return nodeEnd, nil
	}

	system := validatorSystemPrompt(state)
	user := fmt.Sprintf("Candidate response: %q\n\n%s", state.StyledResponse, transcriptPrompt(state))

	content, err := s.complete(ctx, "validator", system, user)
	if err != nil {
		return "", err
	}
	env, ok := decodeJSONObject[validationEnvelope](content, validationSchema)
	if !ok {
		state.SelectedAction = errorAction(state, fmt.Errorf("validator: invalid JSON response"))
		return nodeEnd, nil
	}
	state.Validation = &supervisor.ValidationResult{Approved: env.Approved, Explanation: env.Explanation}
	return s.finishValidation(state, env.Approved)
}

func (s *Subgraph) finishValidation(state *supervisor.AgentState, approved bool) (string, error) {
	if approved {
		state.SelectedAction.Status = supervisor.StatusSuccess
		state.SelectedAction.StyledResponse = state.StyledResponse
		state.RetryCount = 0
		return nodeEnd, nil
	}
	// Not approved: always loop back for another revision. The retry budget
	// is enforced on validator entry, not here; once RetryCount reaches
	// MaxRetries, runValidator's fail-open branch takes over on the next
	// pass instead of scoring a 4th LLM verdict.
	state.RetryCount++
	state.ValidationFeedback = state.Validation.Explanation
	return nodeTextGenerator, nil
}

// --- shared helpers ---

func (s *Subgraph) complete(ctx context.Context, component, system, user string) (string, error) {
	model := model(s.Opts, component)
	content, err := s.LLM.Complete(ctx, system, user, model, 0.4)
	if s.Observer != nil {
		s.Observer.OnLLMCall(ctx, component, model, 0, err)
	}
	if err != nil {
		return "", fmt.Errorf("%s: llm call: %w", component, err)
	}
	return content, nil
}

func model(opts supervisor.Options, component string) string {
	if cfg, ok := opts.NodeModels[component]; ok && cfg.Model != "" {
		return cfg.Model
	}
	return "gpt-4o-mini"
}

func findTrigger(triggers []supervisor.TriggerDef, id string) supervisor.TriggerDef {
	for _, t := range triggers {
		if t.ID == id {
			return t
		}
	}
	return supervisor.TriggerDef{}
}

func suggestedActions(actions []supervisor.ActionDef, trigger supervisor.TriggerDef) []supervisor.ActionDef {
	if len(trigger.ActionIDs) == 0 {
		return actions
	}
	wanted := make(map[string]bool, len(trigger.ActionIDs))
	for _, id := range trigger.ActionIDs {
		wanted[id] = true
	}
	out := make([]supervisor.ActionDef, 0, len(trigger.ActionIDs))
	for _, a := range actions {
		if wanted[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

func actionIDSuggested(suggested []supervisor.ActionDef, id string) bool {
	for _, a := range suggested {
		if a.ID == id {
			return true
		}
	}
	return false
}

func transcriptPrompt(state *supervisor.AgentState) string {
	transcript := promptutil.FormatTranscript(reversed(state.RecentMessages), state.SelectedPersona, nil)
	return fmt.Sprintf("Group sentiment: %s\n\nTranscript (oldest first):\n%s", state.GroupSentiment, transcript)
}

func reversed(messages []supervisor.Message) []supervisor.Message {
	out := make([]supervisor.Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}

var triggerShape = schemabuilder.Object(
	schemabuilder.Property("id", schemabuilder.String("a trigger id, \"neutral\", or \"ERROR\"")).Required(),
	schemabuilder.Property("justification", schemabuilder.String("why this trigger was chosen")).Required(),
)

var triggerSchema = schemabuilder.MustCompile("subgraph-trigger-response", triggerShape)

var decisionShape = schemabuilder.Object(
	schemabuilder.Property("action_id", schemabuilder.String("the chosen action id")).Required(),
	schemabuilder.Property("purpose", schemabuilder.String("why this action serves the goal")).Required(),
)

var decisionSchema = schemabuilder.MustCompile("subgraph-decision-response", decisionShape)

func triggerSystemPrompt(state *supervisor.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Goal: %s\n", state.SelectedPersona.Name, state.AgentGoal)
	b.WriteString("Decide whether any of your triggers apply to the most recent messages.\n")
	b.WriteString("Triggers:\n")
	for _, t := range state.Triggers {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Description)
	}
	b.WriteString("If none apply, respond with id=\"neutral\". Respond with strict JSON only: ")
	b.WriteString(encodeSchema(triggerShape))
	return b.String()
}

func decisionSystemPrompt(state *supervisor.AgentState, suggested []supervisor.ActionDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Goal: %s\n", state.SelectedPersona.Name, state.AgentGoal)
	fmt.Fprintf(&b, "Detected trigger: %s (%s)\n", state.DetectedTrigger.ID, state.DetectedTrigger.Justification)
	b.WriteString("Choose one action to take and state its purpose. Suggested actions:\n")
	for _, a := range suggested {
		fmt.Fprintf(&b, "- %s: %s\n", a.ID, a.Description)
	}
	b.WriteString("Respond with strict JSON only: ")
	b.WriteString(encodeSchema(decisionShape))
	return b.String()
}

func textGeneratorSystemPrompt(state *supervisor.AgentState) string {
	return fmt.Sprintf(
		"You are %s. Goal: %s\nAction: %s (%s)\nWrite a message that accomplishes this action. "+
			"Respond with the message text only, no JSON, no quotes.",
		state.SelectedPersona.Name, state.AgentGoal, state.SelectedAction.ID, state.SelectedAction.Purpose)
}

func stylerSystemPrompt(state *supervisor.AgentState) string {
	return fmt.Sprintf(
		"You are %s, speaking in your own voice. Re-render the given draft so it sounds like you while "+
			"preserving its core intent and content. Respond with the re-rendered message only, no JSON, no quotes.",
		state.SelectedPersona.Name)
}

var validationShape = schemabuilder.Object(
	schemabuilder.Property("approved", schemabuilder.Bool("true if the response passes all four axes")).Required(),
	schemabuilder.Property("explanation", schemabuilder.String("justification, or feedback for revision if rejected")).Required(),
)

var validationSchema = schemabuilder.MustCompile("subgraph-validation-response", validationShape)

func validatorSystemPrompt(state *supervisor.AgentState) string {
	return fmt.Sprintf(
		"You are validating a candidate response for %s against four axes: goal alignment, action "+
			"alignment, persona coherence, and context sanity. Goal: %s. Respond with strict JSON only: %s",
		state.SelectedPersona.Name, state.AgentGoal, encodeSchema(validationShape))
}

func encodeSchema(schema map[string]any) string {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// decodeJSONObject parses content into T after stripping a code fence and
// extracting the outermost {...} span, grounded on orchestrator.go's
// extractJSONCandidate/decodePlan pattern (also reused in emotion/personality).
// schema is validated against the candidate before unmarshal, so a
// structurally-wrong-but-valid-JSON reply fails the same way malformed JSON
// does.
func decodeJSONObject[T any](content string, schema *jsonschema.Schema) (T, bool) {
	var zero T
	trimmed := strings.TrimSpace(stripCodeFence(content))
	candidate := extractJSONCandidate(trimmed, '{', '}')
	if candidate == "" {
		candidate = trimmed
	}
	if candidate == "" || !json.Valid([]byte(candidate)) {
		return zero, false
	}
	if err := schemabuilder.Validate(schema, []byte(candidate)); err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return zero, false
	}
	return out, true
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
