// Package scheduler implements the Scheduler (C6): drains the tick's
// selected_actions into an execution queue, marks messages processed, and
// clears selected_actions via the CLEAR sentinel.
package scheduler

import (
	supervisor "github.com/kestrelhq/persona-supervisor"
)

// Result is what one Schedule call hands back to the supervisor graph:
// the queue to forward to C7/C8, plus the reducer deltas the graph applies
// to SupervisorState.
type Result struct {
	Queue              []supervisor.QueueItem
	ClearedActions     any // supervisor.Clear, applied by the caller via ApplySelectedActions
	ProcessedMessageIDs map[string]bool
}

// skippedStatus reports whether a SelectedAction's status should be
// filtered out of the execution queue rather than scheduled (spec §4.6).
func skippedStatus(status supervisor.SelectedActionStatus) bool {
	return status == supervisor.StatusNoActionNeeded || status == supervisor.StatusError
}

// Schedule transforms actions (the tick's accumulated selected_actions,
// in submission order) into an execution queue, preserving FIFO order.
// It does not mutate its inputs; callers apply Result.ClearedActions
// through supervisor.ApplySelectedActions and mark messages processed
// using ProcessedMessageIDs.
func Schedule(actions []supervisor.SelectedAction, messages []supervisor.Message) Result {
	queue := make([]supervisor.QueueItem, 0, len(actions))
	for _, a := range actions {
		if skippedStatus(a.Status) {
			continue
		}
		queue = append(queue, supervisor.QueueItem{
			AgentName:     a.AgentName,
			AgentType:     a.AgentType,
			ActionID:      a.ID,
			ActionPurpose: a.Purpose,
			ActionContent: a.StyledResponse,
			PhoneNumber:   a.PhoneNumber,
			TargetMessage: a.TargetMessage,
			Status:        supervisor.QueueItemPending,
		})
	}

	processed := make(map[string]bool, len(messages))
	for _, m := range messages {
		processed[m.MessageID] = true
	}

	return Result{
		Queue:               queue,
		ClearedActions:      supervisor.Clear,
		ProcessedMessageIDs: processed,
	}
}

// MarkProcessed applies Result.ProcessedMessageIDs onto messages in place,
// matching spec §4.6's "sets every message's processed=true" step.
func MarkProcessed(messages []supervisor.Message, processed map[string]bool) {
	for i := range messages {
		if processed[messages[i].MessageID] {
			messages[i].Processed = true
		}
	}
}
