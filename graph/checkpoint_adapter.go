package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrelhq/persona-supervisor/checkpoint"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// CheckpointAdapter satisfies supervisor.Checkpointer over the teacher's
// generic checkpoint.Checkpointer (WorkflowContext = interface{}), so the
// HITL suspend point can persist and recover a *SupervisorState without
// checkpoint/ needing to know about our domain types.
type CheckpointAdapter struct {
	Inner checkpoint.Checkpointer
}

// NewCheckpointAdapter wraps inner.
func NewCheckpointAdapter(inner checkpoint.Checkpointer) *CheckpointAdapter {
	return &CheckpointAdapter{Inner: inner}
}

// SaveState stores state as a suspend checkpoint keyed by threadID.
func (a *CheckpointAdapter) SaveState(ctx context.Context, threadID string, state *supervisor.SupervisorState) error {
	var wf checkpoint.WorkflowContext = state
	cp := checkpoint.Create(threadID, "hitl_suspend", &wf)
	return a.Inner.Save(ctx, cp)
}

// LoadState returns the most recent checkpoint for threadID, or nil if none
// exists. The checkpoint store round-trips through JSON (store.StateStore is
// byte-oriented), so Context always comes back as a generic
// map[string]interface{} rather than the original *SupervisorState pointer;
// LoadState re-encodes it through the same JSON tags to recover the typed
// value instead of asserting a pointer identity that the store never
// preserves.
func (a *CheckpointAdapter) LoadState(ctx context.Context, threadID string) (*supervisor.SupervisorState, error) {
	cp, err := a.Inner.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Context == nil || *cp.Context == nil {
		return nil, nil
	}

	raw, err := json.Marshal(*cp.Context)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: re-encode context: %w", err)
	}
	var state supervisor.SupervisorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: decode context as supervisor state: %w", err)
	}
	return &state, nil
}

// DeleteState removes every checkpoint recorded for threadID (the tick
// completed normally, nothing left to recover).
func (a *CheckpointAdapter) DeleteState(ctx context.Context, threadID string) error {
	return a.Inner.DeleteAll(ctx, threadID)
}
