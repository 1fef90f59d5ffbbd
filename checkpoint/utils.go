package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelhq/persona-supervisor/checkpoint/store"
)

// NewFileCheckpointer creates a checkpointer that uses filesystem storage
func NewFileCheckpointer(basePath string, options ...CheckpointOption) (Checkpointer, error) {
	fileStore, err := store.NewFileStore(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file store: %w", err)
	}

	return NewManager(fileStore, options...), nil
}

// NewMemoryCheckpointer creates a checkpointer that uses in-memory storage
func NewMemoryCheckpointer(options ...CheckpointOption) Checkpointer {
	memStore := store.NewMemoryStore()
	return NewManager(memStore, options...)
}

// NewDefaultCheckpointer creates a checkpointer with sensible defaults for development
func NewDefaultCheckpointer() (Checkpointer, error) {
	return NewFileCheckpointer(store.DefaultCheckpointBasePath,
		WithMaxCheckpoints(1),
		WithCompression(true),
		WithRetentionDays(7),
	)
}

// Create builds a suspend checkpoint for threadID, capturing state at
// currentNode (always "hitl_suspend" today).
func Create(threadID, currentNode string, context *WorkflowContext) *Checkpoint {
	return &Checkpoint{
		ID:          generateCheckpointID(),
		ThreadID:    threadID,
		Timestamp:   time.Now(),
		CurrentNode: currentNode,
		Context:     context,
		Type:        CheckpointTypeSuspend,
		Metadata:    make(map[string]interface{}),
		Version:     CurrentCheckpointVersion,
	}
}

// QuickSave creates and saves a checkpoint with minimal configuration
func QuickSave(ctx context.Context, checkpointer Checkpointer, threadID, currentNode string, context *WorkflowContext) (*Checkpoint, error) {
	cp := Create(threadID, currentNode, context)

	if err := checkpointer.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return cp, nil
}

// QuickLoad loads the latest checkpoint for a thread
func QuickLoad(ctx context.Context, checkpointer Checkpointer, threadID string) (*Checkpoint, error) {
	cp, err := checkpointer.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return cp, nil
}

// Validate performs basic validation on a checkpoint
func Validate(checkpoint *Checkpoint) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	if checkpoint.ThreadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}

	if checkpoint.Context == nil {
		return fmt.Errorf("checkpoint context cannot be nil")
	}

	if checkpoint.Version <= 0 {
		return fmt.Errorf("invalid checkpoint version: %d", checkpoint.Version)
	}

	return nil
}

// IsRecoverable checks if a thread can be recovered from checkpoints
func IsRecoverable(ctx context.Context, checkpointer Checkpointer, threadID string) bool {
	_, err := checkpointer.Load(ctx, threadID)
	return err == nil
}
