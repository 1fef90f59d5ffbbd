package hitl

import (
	"context"
	"time"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// DefaultPollInterval matches spec §4.7 step 3's "every 2s" cadence.
const DefaultPollInterval = 2 * time.Second

// Manager drives the suspend/await/resume cycle, grounded on the teacher's
// hitl.Manager (store-backed, mutex-free here since the file store already
// serializes its own I/O) with WaitForDecision's timeout replaced by
// unbounded polling per spec §4.7's "no approval timeout in the core"
// invariant.
type Manager struct {
	store        ApprovalStore
	pollInterval time.Duration
}

// NewManager wraps store. pollInterval defaults to DefaultPollInterval
// when zero.
func NewManager(store ApprovalStore, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Manager{store: store, pollInterval: pollInterval}
}

// BuildRequest assembles the approval payload for one tick's pending queue
// (spec §4.7 step 1).
func BuildRequest(threadID string, queue []supervisor.QueueItem, group supervisor.GroupMetadata, context []ContextMessage) ApprovalRequest {
	req := ApprovalRequest{
		Data: RequestData{
			GroupInfo:       group,
			ContextMessages: context,
			TotalPending:    len(queue),
		},
		Timestamp: time.Now(),
	}
	req.Config.ThreadID = threadID
	for _, item := range queue {
		req.Data.PendingMessages = append(req.Data.PendingMessages, PendingMessage{
			AgentName:       item.AgentName,
			AgentType:       item.AgentType,
			ProposedMessage: item.ActionContent,
			ActionID:        item.ActionID,
			ActionPurpose:   item.ActionPurpose,
			TargetMessage:   item.TargetMessage,
			PhoneNumber:     item.PhoneNumber,
		})
	}
	return req
}

// Suspend persists req, clearing any stale response (spec §4.7 step 2).
func (m *Manager) Suspend(req ApprovalRequest) error {
	return m.store.SavePending(req)
}

// Await blocks until response.json appears or ctx is canceled. There is no
// timeout: an operator's absence suspends indefinitely (spec §4.7's
// invariant).
func (m *Manager) Await(ctx context.Context) (*OperatorResponse, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		resp, ok, err := m.store.LoadResponse()
		if err != nil {
			return nil, err
		}
		if ok {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Resolved is the outcome of applying an OperatorResponse to a pending
// queue: the filtered queue to forward to C8, plus the decision log entry
// to persist via MemoryStore.AppendOperatorDecision.
type Resolved struct {
	Queue    []supervisor.QueueItem
	Decision supervisor.OperatorDecisionLogEntry
}

// ApplyDecisions resolves queue against resp per spec §4.7 step 5: approved
// entries carry forward (with edits applied to ActionContent); rejected
// entries are dropped; a replacement_message becomes a new QueueItem with
// ActionID "operator_replacement".
func ApplyDecisions(queue []supervisor.QueueItem, resp *OperatorResponse) Resolved {
	byAgent := make(map[string]supervisor.ApprovalDecision, len(resp.Response.Decisions))
	for _, d := range resp.Response.Decisions {
		byAgent[d.AgentName] = d
	}

	var out Resolved
	for _, item := range queue {
		decision, found := byAgent[item.AgentName]
		if !found {
			out.Queue = append(out.Queue, item)
			continue
		}
		switch decision.Decision {
		case "approved":
			if decision.EditedContent != "" {
				item.ActionContent = decision.EditedContent
			}
			out.Queue = append(out.Queue, item)
			out.Decision.Approved = append(out.Decision.Approved, decision)
		default: // "rejected" and anything else
			out.Decision.Rejected = append(out.Decision.Rejected, decision)
			if decision.ReplacementMessage != "" {
				replacement := item
				replacement.ActionID = "operator_replacement"
				replacement.ActionContent = decision.ReplacementMessage
				out.Queue = append(out.Queue, replacement)
			}
		}
	}
	return out
}

// Resume clears both IPC files after the response has been consumed (spec
// §4.7 step 6).
func (m *Manager) Resume() error {
	if err := m.store.ClearPending(); err != nil {
		return err
	}
	return m.store.ClearResponse()
}
