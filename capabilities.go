package supervisor

import (
	"context"
	"time"
)

// ChatTransport is the external chat-platform client. The core never talks
// HTTP directly; see chattransport for the concrete JSON/HTTP implementation.
type ChatTransport interface {
	FetchMessages(ctx context.Context, phone, chatID string, limit int) ([]Message, error)
	FetchParticipants(ctx context.Context, phone, chatID string) (GroupMetadata, error)
	SendMessage(ctx context.Context, fromPhone, toChatID, content string, replyToTimestamp string) error
	AddReaction(ctx context.Context, phone, chatID, messageTimestamp, emoji string) error
	ShowTyping(ctx context.Context, phone, chatID string, duration time.Duration) error
}

// LLMClient is the prompt-in/text-out capability used by C2, C3 and C4.
// Complete must return the raw model text unmodified; callers are
// responsible for parsing/validating structured JSON out of it.
type LLMClient interface {
	Complete(ctx context.Context, system, user, model string, temperature float64) (string, error)
}

// ConfigStore loads static configuration: personas, trigger/action catalogs,
// prompt template files, and well-known options (spec §6).
type ConfigStore interface {
	LoadPersonas(ctx context.Context) ([]Persona, error)
	LoadTriggers(ctx context.Context, persona string) ([]TriggerDef, error)
	LoadActions(ctx context.Context, persona string) ([]ActionDef, error)
	LoadPromptTemplate(ctx context.Context, path string) (string, error)
	Options() Options
}

// MemoryStore is the disk-backed persistence of group history, participant
// personality snapshots and operator decision logs (spec §6, §11).
type MemoryStore interface {
	LoadGroupMetadata(ctx context.Context, chatID string) (*PersistedGroupMetadata, error)
	SaveGroupMetadata(ctx context.Context, chatID string, meta PersistedGroupMetadata) error

	LoadGroupHistory(ctx context.Context, chatID string) ([]Message, error)
	SaveGroupHistory(ctx context.Context, chatID string, messages []Message) error

	LoadParticipant(ctx context.Context, chatID, userID string) (*ParticipantRecord, error)
	SaveParticipant(ctx context.Context, chatID string, rec ParticipantRecord) error

	LoadAgentActions(ctx context.Context, chatID, agentName string, limit int) ([]ActionRecord, error)
	SaveAgentActions(ctx context.Context, chatID, agentName string, records []ActionRecord) error

	AppendOperatorDecision(ctx context.Context, groupID string, decision OperatorDecisionLogEntry) error
}

// PersistedGroupMetadata is the on-disk shape at data/<chat_id>/group_metadata.json.
type PersistedGroupMetadata struct {
	GroupMetadata
	LastSync       time.Time `json:"last_sync"`
	LastMessageID  string    `json:"last_message_id"`
	TotalMessages  int       `json:"total_messages"`
}

// PersonalitySnapshot is one dated Big-Five reading for a participant.
type PersonalitySnapshot struct {
	AnalysisDate           time.Time `json:"analysis_date"`
	MessagesAnalyzedCount  int       `json:"messages_analyzed_count"`
	PersonalityAnalysis    struct {
		Big5 Big5 `json:"big5"`
	} `json:"personality_analysis"`
	OverallConfidence float64 `json:"overall_confidence"`
}

// ParticipantRecord is the on-disk shape at data/<chat_id>/participant/<user_id>.json.
type ParticipantRecord struct {
	UserID              string                `json:"user_id"`
	Username            string                `json:"username"`
	PersonalitySnapshots []PersonalitySnapshot `json:"personality_snapshots"` // newest-first
}

// OperatorDecisionLogEntry records one HITL resolution for audit purposes.
type OperatorDecisionLogEntry struct {
	Approved []ApprovalDecision `json:"approved"`
	Rejected []ApprovalDecision `json:"rejected"`
}

// ApprovalDecision mirrors the operator response payload shape (spec §6);
// declared here so MemoryStore and hitl share one type without an import cycle.
type ApprovalDecision struct {
	AgentName          string `json:"agent_name"`
	Decision           string `json:"decision"` // "approved" | "rejected"
	EditedContent      string `json:"edited_content,omitempty"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
	ReplacementMessage string `json:"replacement_message,omitempty"`
}

// Observer is the structured logging/metrics capability (spec §1 non-goals,
// carried as ambient stack regardless). Every pipeline stage reports through
// it; see the observer package for composite/zerolog/JSON implementations.
type Observer interface {
	OnTickStart(ctx context.Context, chatID string, newMessages int)
	OnTickEnd(ctx context.Context, chatID string, dispatched int, err error)
	OnLLMCall(ctx context.Context, component, model string, dur time.Duration, err error)
	OnNodeTransition(ctx context.Context, persona, from, to string)
	OnSuspend(ctx context.Context, chatID string, pending int)
	OnResume(ctx context.Context, chatID string, decisions int)
	OnError(ctx context.Context, component string, err error)
}

// Checkpointer persists SupervisorState at interrupt points (the HITL gate)
// so a graph invocation can suspend and later resume from the same place.
// It is satisfied by graph.CheckpointAdapter; declared here, in terms of our
// own state type, so the graph/runner packages don't need to know about
// checkpoint's generic WorkflowContext alias.
type Checkpointer interface {
	SaveState(ctx context.Context, threadID string, state *SupervisorState) error
	LoadState(ctx context.Context, threadID string) (*SupervisorState, error)
	DeleteState(ctx context.Context, threadID string) error
}
