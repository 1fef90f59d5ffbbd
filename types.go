package supervisor

import "time"

// ReactionUser is the raw per-user reaction payload from the chat transport,
// before it is filtered down to known-agent display names in a Reaction.
type ReactionUser struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Reaction is one emoji reaction left on a message, filtered to known agents.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"` // display names, agents only
}

// MessageEmotion is the per-message affect annotation written by the
// emotion analyzer. A nil *MessageEmotion means "unclassified".
type MessageEmotion struct {
	Emotion       string `json:"emotion"`
	Justification string `json:"justification"`
}

// TraitScore is one Big-Five trait reading for one participant.
type TraitScore struct {
	Score          int     `json:"score"` // 1..5
	Confidence     float64 `json:"confidence"`
	Justification  string  `json:"justification"`
	RawConfidence  float64 `json:"raw_confidence,omitempty"`
	HasRawConfidence bool  `json:"-"`
}

// Big5 maps trait name ("openness", "conscientiousness", "extraversion",
// "agreeableness", "neuroticism") to its current reading.
type Big5 map[string]TraitScore

// TargetMessage is a compact pointer to a prior message, used by triggers
// and actions that refer to what they're reacting/replying to.
type TargetMessage struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text,omitempty"`
}

// Message is the supervisor's unit of chat history: immutable identity
// fields plus mutable annotations filled in by later pipeline stages.
type Message struct {
	MessageID         string          `json:"message_id"`
	SenderID          string          `json:"sender_id"`
	SenderUsername    string          `json:"sender_username"`
	SenderFirstName   string          `json:"sender_first_name"`
	SenderLastName    string          `json:"sender_last_name"`
	Text              string          `json:"text"`
	Date              time.Time       `json:"date"`
	Timestamp         string          `json:"timestamp"` // ISO-8601, preserved verbatim from source
	Reactions         []Reaction      `json:"reactions,omitempty"`
	ReplyToMessageID  string          `json:"reply_to_message_id,omitempty"`
	MessageEmotion    *MessageEmotion `json:"message_emotion,omitempty"`
	SenderPersonality Big5            `json:"sender_personality,omitempty"`
	Processed         bool            `json:"processed"`
}

// IsUnclassified reports whether C2 still needs to annotate this message.
func (m *Message) IsUnclassified() bool { return m.MessageEmotion == nil }

// GroupMetadata describes the chat the supervisor is driving.
type GroupMetadata struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Topic   string   `json:"topic"`
	Members []string `json:"members,omitempty"`
}

// ActionRecord is one persona's completed (approved) action, kept in its
// recent-actions history for prompt context on future ticks.
type ActionRecord struct {
	TriggerID           string         `json:"trigger_id"`
	TriggerJustification string        `json:"trigger_justification"`
	TargetMessage       *TargetMessage `json:"target_message,omitempty"`
	ActionID            string         `json:"action_id"`
	ActionPurpose       string         `json:"action_purpose"`
	ActionContent       string         `json:"action_content"`
	ActionTimestamp     time.Time      `json:"action_timestamp"`
}

// QueueItemStatus tracks an execution queue entry's dispatch state.
type QueueItemStatus string

const (
	QueueItemPending QueueItemStatus = "pending"
	QueueItemSent    QueueItemStatus = "sent"
)

// QueueItem is one action accepted by the scheduler, awaiting dispatch.
type QueueItem struct {
	AgentName     string          `json:"agent_name"`
	AgentType     string          `json:"agent_type"`
	ActionID      string          `json:"action_id"`
	ActionPurpose string          `json:"action_purpose"`
	ActionContent string          `json:"action_content"`
	PhoneNumber   string          `json:"phone_number"`
	TargetMessage *TargetMessage  `json:"target_message,omitempty"`
	Status        QueueItemStatus `json:"status"`
}

// DetectedTrigger is C4's trigger-analysis output. ID is either a catalog
// trigger id, "neutral" (no intervention), or "ERROR" (analysis failed).
type DetectedTrigger struct {
	ID            string         `json:"id"`
	Justification string         `json:"justification"`
	TargetMessage *TargetMessage `json:"target_message,omitempty"`
}

const (
	TriggerNeutral = "neutral"
	TriggerError   = "ERROR"
)

// SelectedActionStatus is the terminal status a persona subgraph assigns
// to its own selected_action before returning to the supervisor graph.
type SelectedActionStatus string

const (
	StatusNoActionNeeded   SelectedActionStatus = "no_action_needed"
	StatusError            SelectedActionStatus = "error"
	StatusSuccess          SelectedActionStatus = "success"
	StatusMaxRetriesReached SelectedActionStatus = "max_retries_reached"
)

// SelectedAction is one persona's verdict for the tick: either a dispatchable
// message/reaction, or a terminal no-op/error status.
type SelectedAction struct {
	ID              string               `json:"id"`
	Purpose         string               `json:"purpose"`
	Status          SelectedActionStatus `json:"status"`
	StyledResponse  string               `json:"styled_response,omitempty"`
	ValidationNote  string               `json:"validation_note,omitempty"`
	TargetMessage   *TargetMessage       `json:"target_message,omitempty"`
	AgentType       string               `json:"agent_type"`
	AgentName       string               `json:"agent_name"`
	PhoneNumber     string               `json:"phone_number"`
}

// SupervisorState is the shared state threaded through one tick of the
// supervisor graph (C5). Ownership: the run loop owns it for the duration
// of a tick; persona subgraphs receive read-only copies of the slices they
// need and return deltas that are merged back through the reducers in
// reducers.go.
type SupervisorState struct {
	RecentMessages      []Message               `json:"recent_messages"` // newest-first, bounded
	GroupMetadata       GroupMetadata           `json:"group_metadata"`
	GroupSentiment      string                  `json:"group_sentiment"`
	SelectedActions     []SelectedAction        `json:"selected_actions"`
	ExecutionQueue      []QueueItem             `json:"execution_queue"`
	AgentsRecentActions map[string][]ActionRecord `json:"agents_recent_actions"`
	PersonalityAnalysis map[string]Big5          `json:"personality_analysis"` // user_id -> big5
}

// NewSupervisorState returns a zero-value state with initialized maps.
func NewSupervisorState() *SupervisorState {
	return &SupervisorState{
		AgentsRecentActions: make(map[string][]ActionRecord),
		PersonalityAnalysis: make(map[string]Big5),
	}
}

// AgentState is the isolated, per-persona state built by the supervisor
// graph for one C4 invocation (C4.1). It is never shared across goroutines.
type AgentState struct {
	// Copied inputs (read-only within the subgraph run).
	RecentMessages []Message
	GroupSentiment string
	GroupMetadata  GroupMetadata

	// Persona configuration.
	SelectedPersona Persona
	AgentType       string
	AgentGoal       string
	Triggers        []TriggerDef
	Actions         []ActionDef
	AgentPrompt     string
	RecentActions   []ActionRecord

	// Pipeline slots, mutated node-to-node.
	DetectedTrigger     *DetectedTrigger
	SelectedAction      *SelectedAction
	GeneratedResponse   string
	StyledResponse      string
	Validation          *ValidationResult
	ValidationFeedback  string
	RetryCount          int
	CurrentNode         string
	NextNode            string
}

// ValidationResult is the validator node's verdict on a styled response.
type ValidationResult struct {
	Approved    bool   `json:"approved"`
	Explanation string `json:"explanation"`
}

// Persona describes one configured conversational character.
type Persona struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	AgentGoal  string `json:"agent_goal"`
	PersonaFile string `json:"persona_file"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Prompt     string `json:"-"` // loaded from PersonaFile by ConfigStore
}

// TriggerDef is one entry in a persona's trigger catalog.
type TriggerDef struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	ActionIDs   []string `json:"actions"` // suggested-actions list
}

// ActionDef is one entry in a persona's action catalog.
type ActionDef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Purpose     string `json:"purpose"`
}
