// Package hitl implements the Human-Approval Gate (C7): an operator must
// approve or reject each pending action before C8 dispatches it, via a
// two-file JSON IPC contract (spec §4.7, §6).
package hitl

import (
	"time"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// PendingMessage is one action awaiting operator sign-off, grounded on spec
// §4.7 item 1's payload shape.
type PendingMessage struct {
	AgentName             string                   `json:"agent_name"`
	AgentType             string                   `json:"agent_type"`
	ProposedMessage       string                   `json:"proposed_message"`
	ActionID              string                   `json:"action_id"`
	ActionPurpose         string                   `json:"action_purpose"`
	TriggerID             string                   `json:"trigger_id,omitempty"`
	TriggerJustification  string                   `json:"trigger_justification,omitempty"`
	TargetMessage         *supervisor.TargetMessage `json:"target_message,omitempty"`
	PhoneNumber           string                   `json:"phone_number"`
}

// ContextMessage is one line of the recent-history window shown to the
// operator alongside the pending actions.
type ContextMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Emotion   string `json:"emotion,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RequestData is the "data" object inside pending.json.
type RequestData struct {
	PendingMessages []PendingMessage        `json:"pending_messages"`
	GroupInfo       supervisor.GroupMetadata `json:"group_info"`
	ContextMessages []ContextMessage        `json:"context_messages"`
	TotalPending    int                     `json:"total_pending"`
}

// ApprovalRequest is the full pending.json document.
type ApprovalRequest struct {
	Config    struct {
		ThreadID string `json:"thread_id"`
	} `json:"config"`
	Data      RequestData `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// OperatorResponse is the full response.json document.
type OperatorResponse struct {
	Response struct {
		Decisions []supervisor.ApprovalDecision `json:"decisions"`
	} `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalStore persists the two-file IPC contract. Implementations must
// make Save/Clear atomic (write-temp-then-rename) since the supervisor and
// an external approval UI are concurrent participants (spec §5).
type ApprovalStore interface {
	SavePending(req ApprovalRequest) error
	LoadPending() (*ApprovalRequest, bool, error)
	ClearPending() error

	LoadResponse() (*OperatorResponse, bool, error)
	ClearResponse() error
}
