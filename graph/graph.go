// Package graph implements the Supervisor Graph (C5): the per-tick
// composition of C2 (emotion) -> C3 (personality) -> C4 (persona subgraphs,
// fanned out concurrently) -> C6 (scheduler) -> C7 (HITL gate) -> C8
// (executor), applying the root package's reducers at the persona-fan-out
// join and performing the centralized post-tick recent-messages trim.
//
// The persona fan-out is grounded on multi/modes.go's RunParallelWithOptions
// (the same pre-sized-results-slice-plus-WaitGroup shape used again, at a
// coarser grain, by personality/'s trait fan-out): one goroutine per
// persona, writing into its own slice index, joined before any reducer runs.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelhq/persona-supervisor/executor"
	"github.com/kestrelhq/persona-supervisor/hitl"
	"github.com/kestrelhq/persona-supervisor/scheduler"
	"github.com/kestrelhq/persona-supervisor/subgraph"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// contextWindowSize bounds how many recent messages accompany an approval
// request, per spec §4.7's "a short window of context, not the full
// history" requirement.
const contextWindowSize = 10

// Emotion is the C2 capability the graph drives every tick.
type Emotion interface {
	Analyze(ctx context.Context, messages []supervisor.Message, personas []supervisor.Persona, currentSentiment string) (string, error)
}

// Personality is the C3 capability the graph drives every tick.
type Personality interface {
	Analyze(ctx context.Context, chatID string, messages []supervisor.Message, cache map[string]supervisor.Big5) error
}

// PersonaRunner is the C4 capability invoked once per persona, per tick.
type PersonaRunner interface {
	Run(ctx context.Context, state *supervisor.AgentState) error
}

// Graph wires the pipeline's capabilities together. Catalog (personas,
// triggers, actions) is loaded once via Load and reused across ticks; callers
// reload by calling Load again (the runner calls it once, in Bootstrap).
type Graph struct {
	Config       supervisor.ConfigStore
	Memory       supervisor.MemoryStore
	Emotion      Emotion
	Personality  Personality
	Subgraph     PersonaRunner
	Gate         *hitl.Gate
	Executor     *executor.Executor
	Checkpointer supervisor.Checkpointer
	Observer     supervisor.Observer
	Opts         supervisor.Options

	personas []supervisor.Persona
	triggers map[string][]supervisor.TriggerDef
	actions  map[string][]supervisor.ActionDef
}

// New builds a Graph. Subgraph is typed as the narrow PersonaRunner
// interface (rather than *subgraph.Subgraph) so tests can substitute a fake.
func New(cfg supervisor.ConfigStore, memory supervisor.MemoryStore, emotionAnalyzer Emotion, personalityAnalyzer Personality, sub PersonaRunner, gate *hitl.Gate, exec *executor.Executor, checkpointer supervisor.Checkpointer, observer supervisor.Observer, opts supervisor.Options) *Graph {
	return &Graph{
		Config: cfg, Memory: memory,
		Emotion: emotionAnalyzer, Personality: personalityAnalyzer, Subgraph: sub,
		Gate: gate, Executor: exec, Checkpointer: checkpointer, Observer: observer, Opts: opts,
	}
}

// Load reads the persona/trigger/action catalog from Config. It must be
// called before the first Invoke.
func (g *Graph) Load(ctx context.Context) error {
	personas, err := g.Config.LoadPersonas(ctx)
	if err != nil {
		return fmt.Errorf("graph: load personas: %w", err)
	}
	triggers := make(map[string][]supervisor.TriggerDef, len(personas))
	actions := make(map[string][]supervisor.ActionDef, len(personas))
	for _, p := range personas {
		t, err := g.Config.LoadTriggers(ctx, p.Name)
		if err != nil {
			return fmt.Errorf("graph: load triggers for %s: %w", p.Name, err)
		}
		a, err := g.Config.LoadActions(ctx, p.Name)
		if err != nil {
			return fmt.Errorf("graph: load actions for %s: %w", p.Name, err)
		}
		triggers[p.Name] = t
		actions[p.Name] = a
	}
	g.personas = personas
	g.triggers = triggers
	g.actions = actions
	return nil
}

// Personas returns the loaded persona catalog.
func (g *Graph) Personas() []supervisor.Persona { return g.personas }

// Invoke runs one full tick against state, mutating it in place, and
// returns how many actions were actually dispatched. threadID identifies
// this tick for the HITL gate's suspend/resume IPC and the checkpoint
// adapter.
func (g *Graph) Invoke(ctx context.Context, threadID string, state *supervisor.SupervisorState) (int, error) {
	if g.Observer != nil {
		g.Observer.OnTickStart(ctx, g.Opts.ChatID, countUnprocessed(state.RecentMessages))
	}

	sentiment, err := g.Emotion.Analyze(ctx, state.RecentMessages, g.personas, state.GroupSentiment)
	if err != nil {
		if g.Observer != nil {
			g.Observer.OnTickEnd(ctx, g.Opts.ChatID, 0, err)
		}
		return 0, fmt.Errorf("graph: emotion analysis: %w", err)
	}
	state.GroupSentiment = sentiment

	if err := g.Personality.Analyze(ctx, g.Opts.ChatID, state.RecentMessages, state.PersonalityAnalysis); err != nil {
		g.reportError(ctx, "personality analysis", err)
	}

	deltas := g.runPersonaFanOut(ctx, state)
	supervisor.ApplyPersonaDeltas(state, deltas)

	result := scheduler.Schedule(state.SelectedActions, state.RecentMessages)
	state.ExecutionQueue = result.Queue
	state.SelectedActions = supervisor.ApplySelectedActions(state.SelectedActions, result.ClearedActions)
	scheduler.MarkProcessed(state.RecentMessages, result.ProcessedMessageIDs)

	if len(state.ExecutionQueue) == 0 {
		trimRecentMessages(state, g.Opts.MaxRecentMessages)
		if g.Observer != nil {
			g.Observer.OnTickEnd(ctx, g.Opts.ChatID, 0, nil)
		}
		return 0, nil
	}

	g.Executor.SetLatestMessageTimestamp(latestTimestamp(state.RecentMessages))

	if g.Opts.HITLEnabled {
		if g.Checkpointer != nil {
			if err := g.Checkpointer.SaveState(ctx, threadID, state); err != nil {
				g.reportError(ctx, "checkpoint save", err)
			}
		}
		if g.Observer != nil {
			g.Observer.OnSuspend(ctx, g.Opts.ChatID, len(state.ExecutionQueue))
		}
	}

	dispatched, decision, dispatchErr := g.Gate.Run(ctx, threadID, state.ExecutionQueue, state.GroupMetadata, contextWindow(state.RecentMessages), g.Executor)

	if decision != nil {
		if g.Observer != nil {
			g.Observer.OnResume(ctx, g.Opts.ChatID, len(decision.Approved)+len(decision.Rejected))
		}
		if err := g.Memory.AppendOperatorDecision(ctx, g.Opts.ChatID, *decision); err != nil {
			g.reportError(ctx, "append operator decision", err)
		}
	}

	if g.Checkpointer != nil {
		if err := g.Checkpointer.DeleteState(ctx, threadID); err != nil {
			g.reportError(ctx, "checkpoint delete", err)
		}
	}

	trimRecentMessages(state, g.Opts.MaxRecentMessages)

	if g.Observer != nil {
		g.Observer.OnTickEnd(ctx, g.Opts.ChatID, dispatched, dispatchErr)
	}
	return dispatched, dispatchErr
}

func (g *Graph) reportError(ctx context.Context, component string, err error) {
	if g.Observer != nil {
		g.Observer.OnError(ctx, "graph", fmt.Errorf("%s: %w", component, err))
	}
}

// runPersonaFanOut invokes Subgraph once per persona, concurrently, and
// collects the deltas in persona order (reducers.go's MergeAgentsRecentActions
// merges per-key, so submission order across personas is irrelevant; this
// just keeps output deterministic for tests).
func (g *Graph) runPersonaFanOut(ctx context.Context, state *supervisor.SupervisorState) []supervisor.ActionsDelta {
	deltas := make([]supervisor.ActionsDelta, len(g.personas))
	var wg sync.WaitGroup
	for i, p := range g.personas {
		wg.Add(1)
		go func(i int, p supervisor.Persona) {
			defer wg.Done()
			agentState := g.buildAgentState(p, state)
			if err := g.Subgraph.Run(ctx, agentState); err != nil {
				g.reportError(ctx, fmt.Sprintf("persona %s subgraph", p.Name), err)
				deltas[i] = supervisor.ActionsDelta{AgentName: p.Name}
				return
			}
			deltas[i] = toDelta(p, agentState)
		}(i, p)
	}
	wg.Wait()
	return deltas
}

func (g *Graph) buildAgentState(p supervisor.Persona, state *supervisor.SupervisorState) *supervisor.AgentState {
	return &supervisor.AgentState{
		RecentMessages:  state.RecentMessages,
		GroupSentiment:  state.GroupSentiment,
		GroupMetadata:   state.GroupMetadata,
		SelectedPersona: p,
		AgentType:       p.Type,
		AgentGoal:       p.AgentGoal,
		Triggers:        g.triggers[p.Name],
		Actions:         g.actions[p.Name],
		AgentPrompt:     p.Prompt,
		RecentActions:   state.AgentsRecentActions[p.Name],
		CurrentNode:     "entry",
	}
}

// toDelta extracts the ActionsDelta a finished persona subgraph run
// contributes to the tick: its selected action (if any), plus a history
// record when the action was actually approved for dispatch.
func toDelta(p supervisor.Persona, agentState *supervisor.AgentState) supervisor.ActionsDelta {
	delta := supervisor.ActionsDelta{AgentName: p.Name}
	if agentState.SelectedAction == nil {
		return delta
	}
	delta.Action = agentState.SelectedAction

	if agentState.SelectedAction.Status != supervisor.StatusSuccess {
		return delta
	}
	record := &supervisor.ActionRecord{
		ActionID:        agentState.SelectedAction.ID,
		ActionPurpose:   agentState.SelectedAction.Purpose,
		ActionContent:   agentState.SelectedAction.StyledResponse,
		TargetMessage:   agentState.SelectedAction.TargetMessage,
		ActionTimestamp: time.Now(),
	}
	if agentState.DetectedTrigger != nil {
		record.TriggerID = agentState.DetectedTrigger.ID
		record.TriggerJustification = agentState.DetectedTrigger.Justification
	}
	delta.Record = record
	return delta
}

func countUnprocessed(messages []supervisor.Message) int {
	n := 0
	for _, m := range messages {
		if !m.Processed {
			n++
		}
	}
	return n
}

// latestTimestamp returns the newest message's timestamp. RecentMessages is
// newest-first, so that's simply the first entry.
func latestTimestamp(messages []supervisor.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[0].Timestamp
}

// contextWindow builds the operator-facing history snippet for a HITL
// approval request, newest contextWindowSize messages, oldest first.
func contextWindow(messages []supervisor.Message) []hitl.ContextMessage {
	n := len(messages)
	if n > contextWindowSize {
		n = contextWindowSize
	}
	window := make([]hitl.ContextMessage, 0, n)
	for i := n - 1; i >= 0; i-- {
		m := messages[i]
		emotion := ""
		if m.MessageEmotion != nil {
			emotion = m.MessageEmotion.Emotion
		}
		window = append(window, hitl.ContextMessage{
			Sender:    m.SenderUsername,
			Text:      m.Text,
			Emotion:   emotion,
			Timestamp: m.Timestamp,
		})
	}
	return window
}

// trimRecentMessages enforces the tick's recent-messages bound, keeping the
// newest max entries (RecentMessages is newest-first). This is the
// centralized post-tick trim: no other component drops history.
func trimRecentMessages(state *supervisor.SupervisorState, max int) {
	if max <= 0 || len(state.RecentMessages) <= max {
		return
	}
	state.RecentMessages = state.RecentMessages[:max]
}
