package checkpoint

import (
	"context"
	"time"
)

// Checkpointer persists and recovers a suspended conversation thread's state
// across the HITL approval gate (C7).
type Checkpointer interface {
	// Save creates a checkpoint for the specified thread
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves the latest checkpoint for a thread
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// LoadByID retrieves a specific checkpoint by ID
	LoadByID(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a thread, sorted by timestamp (newest first)
	List(ctx context.Context, threadID string) ([]*CheckpointInfo, error)

	// Delete removes a specific checkpoint
	Delete(ctx context.Context, threadID, checkpointID string) error

	// DeleteAll removes all checkpoints for a thread (the tick resumed cleanly,
	// nothing left to recover)
	DeleteAll(ctx context.Context, threadID string) error

	// Cleanup removes checkpoints older than the specified duration
	Cleanup(ctx context.Context, olderThan time.Duration) error

	// Close releases any resources held by the checkpointer
	Close() error
}

// Checkpoint represents a suspended thread's SupervisorState at a specific
// point in time, captured when the scheduler's queue triggers the HITL gate.
type Checkpoint struct {
	// Unique checkpoint identifier
	ID string `json:"id"`

	// Thread (chat/conversation) this checkpoint belongs to
	ThreadID string `json:"thread_id"`

	// When this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// CurrentNode records where in the supervisor graph the state was captured; always
	// "hitl_suspend" today, kept distinct from Type for forward compatibility
	// if a second suspend point is ever added
	CurrentNode string `json:"current_node"`

	// Full SupervisorState, round-tripped through JSON (see
	// graph.CheckpointAdapter)
	Context *WorkflowContext `json:"context"`

	// Type of checkpoint
	Type CheckpointType `json:"type"`

	// Additional metadata for this checkpoint
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Version for checkpoint format compatibility
	Version int `json:"version"`
}

// CheckpointInfo provides summary information about a checkpoint
type CheckpointInfo struct {
	ID          string                 `json:"id"`
	ThreadID    string                 `json:"thread_id"`
	Timestamp   time.Time              `json:"timestamp"`
	CurrentNode string                 `json:"current_node"`
	Type        CheckpointType         `json:"type"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Size        int64                  `json:"size,omitempty"`
}

// CheckpointType indicates the reason for creating a checkpoint
type CheckpointType string

const (
	// CheckpointTypeSuspend is the only type the supervisor ever creates: a
	// thread suspended at the HITL gate, awaiting an operator decision.
	CheckpointTypeSuspend CheckpointType = "hitl_suspend"
)

// CheckpointConfig contains configuration options for checkpointing behavior.
// There is no auto-save/per-node interval here: the supervisor checkpoints
// exactly once, synchronously, at the HITL suspend point (see
// graph.CheckpointAdapter.SaveState) — there is no background timer to tune.
type CheckpointConfig struct {
	// Maximum number of checkpoints to keep per thread. The supervisor only
	// ever has at most one in-flight suspend checkpoint per thread (DeleteAll
	// clears it on resume), so this exists to bound storage if that
	// invariant is ever violated, not as a normal operating parameter.
	MaxCheckpoints int `json:"max_checkpoints"`

	// Enable compression for checkpoint data
	Compression bool `json:"compression"`

	// Number of days to retain an abandoned (never-resumed) checkpoint
	// before Cleanup removes it
	RetentionDays int `json:"retention_days"`

	// Enable automatic cleanup of old checkpoints
	AutoCleanup bool `json:"auto_cleanup"`

	// Interval for automatic cleanup operations
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// DefaultCheckpointConfig returns a default checkpoint configuration tuned
// for the HITL suspend-point use case: one checkpoint per thread, retained
// for a week in case an operator is slow to respond.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		MaxCheckpoints:  1,
		Compression:     true,
		RetentionDays:   7,
		AutoCleanup:     true,
		CleanupInterval: time.Hour,
	}
}

// CheckpointOption allows configuring checkpoint behavior
type CheckpointOption func(*CheckpointConfig)

// WithMaxCheckpoints sets the maximum number of checkpoints to keep
func WithMaxCheckpoints(max int) CheckpointOption {
	return func(c *CheckpointConfig) {
		c.MaxCheckpoints = max
	}
}

// WithCompression enables or disables checkpoint compression
func WithCompression(enabled bool) CheckpointOption {
	return func(c *CheckpointConfig) {
		c.Compression = enabled
	}
}

// WithRetentionDays sets how many days to retain checkpoints
func WithRetentionDays(days int) CheckpointOption {
	return func(c *CheckpointConfig) {
		c.RetentionDays = days
	}
}

// WithAutoCleanup enables or disables automatic cleanup
func WithAutoCleanup(enabled bool) CheckpointOption {
	return func(c *CheckpointConfig) {
		c.AutoCleanup = enabled
	}
}

// WithCleanupInterval sets the interval for automatic cleanup
func WithCleanupInterval(interval time.Duration) CheckpointOption {
	return func(c *CheckpointConfig) {
		c.CleanupInterval = interval
	}
}

// WorkflowContext holds the checkpointed state. It is declared as interface{}
// rather than *supervisor.SupervisorState to avoid a circular import between
// checkpoint and the root package; graph.CheckpointAdapter recovers the
// typed value by re-encoding through JSON (see its LoadState).
type WorkflowContext = interface{}
