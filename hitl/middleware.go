package hitl

import (
	"context"
	"fmt"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// Gate is C7 itself: when Enabled is false it forwards the queue unchanged;
// otherwise it suspends the tick for operator sign-off. Grounded on the
// teacher's ToolCallMiddleware.WrapAgent — the same "wrap the next stage,
// intercept before it runs" shape, generalized from wrapping an
// agent.Agent's Execute to wrapping C8's queue input.
type Gate struct {
	Enabled bool
	Manager *Manager
}

// NewGate builds a Gate. manager may be nil when enabled is false.
func NewGate(enabled bool, manager *Manager) *Gate {
	return &Gate{Enabled: enabled, Manager: manager}
}

// Dispatcher is the next stage (C8) the gate forwards an approved queue to.
type Dispatcher interface {
	Dispatch(ctx context.Context, queue []supervisor.QueueItem) (int, error)
}

// Run implements spec §4.7 end to end: build the request, suspend, await
// the operator, apply decisions, forward to next, clear IPC state. When the
// queue is empty or the gate is disabled it calls next directly.
func (g *Gate) Run(ctx context.Context, threadID string, queue []supervisor.QueueItem, group supervisor.GroupMetadata, window []ContextMessage, next Dispatcher) (int, *supervisor.OperatorDecisionLogEntry, error) {
	if !g.Enabled || len(queue) == 0 {
		dispatched, err := next.Dispatch(ctx, queue)
		return dispatched, nil, err
	}

	req := BuildRequest(threadID, queue, group, window)
	if err := g.Manager.Suspend(req); err != nil {
		return 0, nil, fmt.Errorf("hitl: suspend: %w", err)
	}

	resp, err := g.Manager.Await(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("hitl: await operator: %w", err)
	}

	resolved := ApplyDecisions(queue, resp)
	if err := g.Manager.Resume(); err != nil {
		return 0, nil, fmt.Errorf("hitl: resume: %w", err)
	}

	dispatched, err := next.Dispatch(ctx, resolved.Queue)
	return dispatched, &resolved.Decision, err
}
