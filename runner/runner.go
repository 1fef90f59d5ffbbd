// Package runner implements the Run Loop (C9): cold-start bootstrap
// followed by a polling loop that invokes the Supervisor Graph whenever new,
// not-yet-processed messages appear.
//
// The tick/poll split - a short fixed-cadence tick, and a poll that only
// actually fires once MessageCheckInterval has elapsed since the last one -
// is grounded directly on original_source/langgraph/run_supervisor.py's
// run_supervisor_loop: a 10s time.sleep between iterations of the outer
// loop, gated by a time_since_check >= MESSAGE_CHECK_INTERVAL check, with
// idle status logged periodically rather than every outer tick.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kestrelhq/persona-supervisor/graph"
	"github.com/kestrelhq/persona-supervisor/poller"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// idleTick is the outer loop's default cadence, matching the original's
// time.sleep(10); Run ticks at MessageCheckInterval instead when that is
// shorter.
const idleTick = 10 * time.Second

// Runner drives one chat's supervisor loop end to end.
type Runner struct {
	ChatID    string
	Phone     string
	Transport supervisor.ChatTransport
	Poller    *poller.Poller
	Graph     *graph.Graph
	Memory    supervisor.MemoryStore
	Observer  supervisor.Observer
	Opts      supervisor.Options
	Ring      *supervisor.SeenIDRing

	threadSeq uint64
}

// New builds a Runner. ring may be freshly constructed; Bootstrap primes it.
func New(chatID, phone string, transport supervisor.ChatTransport, p *poller.Poller, g *graph.Graph, memory supervisor.MemoryStore, observer supervisor.Observer, opts supervisor.Options, ring *supervisor.SeenIDRing) *Runner {
	return &Runner{
		ChatID: chatID, Phone: phone, Transport: transport, Poller: p, Graph: g,
		Memory: memory, Observer: observer, Opts: opts, Ring: ring,
	}
}

// Bootstrap performs spec §4.9's cold-start sequence: load the persona
// catalog, fetch group metadata and initial history, prime the seen-id ring,
// load each persona's recent action history, and settle any already-pending
// unprocessed messages with one graph invocation. It returns the initial
// SupervisorState for the main loop to keep driving.
func (r *Runner) Bootstrap(ctx context.Context) (*supervisor.SupervisorState, error) {
	if err := r.Graph.Load(ctx); err != nil {
		return nil, fmt.Errorf("runner: load catalog: %w", err)
	}
	// spec §4.9 step 2: pick a primary phone for API identity when the
	// caller didn't pin one explicitly.
	if r.Phone == "" {
		for _, p := range r.Graph.Personas() {
			if p.PhoneNumber != "" {
				r.Phone = p.PhoneNumber
				break
			}
		}
	}

	state := supervisor.NewSupervisorState()

	if persisted, err := r.Memory.LoadGroupMetadata(ctx, r.ChatID); err != nil {
		r.reportError(ctx, "load group metadata", err)
	} else if persisted != nil {
		state.GroupMetadata = persisted.GroupMetadata
	}

	if live, err := r.Transport.FetchParticipants(ctx, r.Phone, r.ChatID); err != nil {
		r.reportError(ctx, "fetch group metadata", err)
	} else {
		state.GroupMetadata = live
	}
	state.GroupMetadata.ID = r.ChatID

	if err := r.Memory.SaveGroupMetadata(ctx, r.ChatID, supervisor.PersistedGroupMetadata{
		GroupMetadata: state.GroupMetadata,
		LastSync:      time.Now(),
	}); err != nil {
		r.reportError(ctx, "save group metadata", err)
	}

	if err := r.primeHistory(ctx, state); err != nil {
		return nil, err
	}

	for _, p := range r.Graph.Personas() {
		records, err := r.Memory.LoadAgentActions(ctx, r.ChatID, p.Name, r.Opts.MaxInitialActionsPerAgent)
		if err != nil {
			r.reportError(ctx, fmt.Sprintf("load actions for %s", p.Name), err)
			continue
		}
		if len(records) > 0 {
			state.AgentsRecentActions[p.Name] = records
		}
	}

	if countUnprocessed(state.RecentMessages) > 0 {
		if _, err := r.invoke(ctx, state); err != nil {
			r.reportError(ctx, "initial settle invoke", err)
		}
	}

	return state, nil
}

// primeHistory fetches raw messages, merges them with whatever MemoryStore
// already has (existing entries win on id collision, which is how already-
// persisted emotion annotations survive the merge; see memory/file.go's
// dedupByID), saves, then loads back into state.RecentMessages, priming the
// seen-id ring and marking agent-authored messages processed as it goes.
func (r *Runner) primeHistory(ctx context.Context, state *supervisor.SupervisorState) error {
	existing, err := r.Memory.LoadGroupHistory(ctx, r.ChatID)
	if err != nil {
		return fmt.Errorf("runner: load group history: %w", err)
	}

	raw, err := r.Transport.FetchMessages(ctx, r.Phone, r.ChatID, r.Opts.TelegramFetchLimit)
	if err != nil {
		return fmt.Errorf("runner: fetch initial messages: %w", err)
	}

	merged := make([]supervisor.Message, 0, len(existing)+len(raw))
	merged = append(merged, existing...)
	merged = append(merged, raw...)
	if err := r.Memory.SaveGroupHistory(ctx, r.ChatID, merged); err != nil {
		return fmt.Errorf("runner: save group history: %w", err)
	}

	history, err := r.Memory.LoadGroupHistory(ctx, r.ChatID)
	if err != nil {
		return fmt.Errorf("runner: load back group history: %w", err)
	}

	personas := r.Graph.Personas()
	for i := range history {
		r.Ring.Add(history[i].MessageID)
		if supervisor.IsAgentMessage(personas, history[i]) {
			history[i].Processed = true
		}
	}
	if max := r.Opts.MaxRecentMessages; max > 0 && len(history) > max {
		history = history[:max]
	}
	state.RecentMessages = history
	return nil
}

// Run blocks, driving the main loop until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	state, err := r.Bootstrap(ctx)
	if err != nil {
		return err
	}

	tick := idleTick
	if r.Opts.MessageCheckInterval > 0 && r.Opts.MessageCheckInterval < tick {
		tick = r.Opts.MessageCheckInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastPoll := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(lastPoll) < r.Opts.MessageCheckInterval {
				continue
			}
			lastPoll = time.Now()
			if err := r.pollAndInvoke(ctx, state); err != nil {
				r.reportError(ctx, "poll", err)
			}
		}
	}
}

// pollAndInvoke is one main-loop iteration: fetch new messages, fold them
// into state, and invoke the graph when anything is left unprocessed.
func (r *Runner) pollAndInvoke(ctx context.Context, state *supervisor.SupervisorState) error {
	newMessages, err := r.Poller.Poll(ctx, r.Phone, r.ChatID, r.Ring)
	if err != nil {
		return fmt.Errorf("poll messages: %w", err)
	}
	if len(newMessages) == 0 {
		return nil
	}

	state.RecentMessages = append(newMessages, state.RecentMessages...)

	if countUnprocessed(state.RecentMessages) == 0 {
		return nil
	}

	if _, err := r.invoke(ctx, state); err != nil {
		return fmt.Errorf("invoke graph: %w", err)
	}
	return nil
}

// invoke runs one graph tick with a fresh thread_id and persists the
// resulting recent-messages (which carry the tick's emotion annotations)
// back to MemoryStore.
func (r *Runner) invoke(ctx context.Context, state *supervisor.SupervisorState) (int, error) {
	threadID := r.nextThreadID()
	dispatched, err := r.Graph.Invoke(ctx, threadID, state)

	for i := range state.RecentMessages {
		state.RecentMessages[i].Processed = true
	}
	if saveErr := r.Memory.SaveGroupHistory(ctx, r.ChatID, state.RecentMessages); saveErr != nil {
		r.reportError(ctx, "persist emotion updates", saveErr)
	}

	return dispatched, err
}

func (r *Runner) nextThreadID() string {
	n := atomic.AddUint64(&r.threadSeq, 1)
	return fmt.Sprintf("%s-%d", r.ChatID, n)
}

func (r *Runner) reportError(ctx context.Context, component string, err error) {
	if r.Observer != nil {
		r.Observer.OnError(ctx, "runner", fmt.Errorf("%s: %w", component, err))
	}
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
