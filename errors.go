package supervisor

import (
	"errors"
	"fmt"
)

// Core sentinel errors, grouped by the pipeline stage that raises them.
var (
	// Transport errors (C1, C8).
	ErrTransportUnavailable = errors.New("supervisor: chat transport unavailable")
	ErrSendFailed           = errors.New("supervisor: message send failed")

	// LLM / analyzer errors (C2, C3, C4).
	ErrLLMParseFailed   = errors.New("supervisor: llm response failed strict-json validation")
	ErrNoLLMConfigured  = errors.New("supervisor: no LLM client configured")

	// HITL (C7).
	ErrApprovalPending = errors.New("supervisor: approval still pending")
	ErrNoCheckpointer  = errors.New("supervisor: hitl enabled but no checkpointer configured")

	// Memory / checkpoint I/O (C11).
	ErrPersistFailed = errors.New("supervisor: persistence write failed")

	// Config (C12 / ConfigStore).
	ErrPersonaNotFound = errors.New("supervisor: persona not found")
	ErrInvalidConfig   = errors.New("supervisor: invalid configuration")
)

// WrapTransportError wraps a transport-layer failure with call context.
func WrapTransportError(err error, msg string) error {
	return fmt.Errorf("transport: %s: %w", msg, err)
}

// WrapLLMError wraps an LLM-call failure with call context.
func WrapLLMError(err error, msg string) error {
	return fmt.Errorf("llm: %s: %w", msg, err)
}

// WrapMemoryError wraps a MemoryStore failure with call context.
func WrapMemoryError(err error, msg string) error {
	return fmt.Errorf("memory: %s: %w", msg, err)
}

// WrapConfigError wraps a ConfigStore failure with call context.
func WrapConfigError(err error, msg string) error {
	return fmt.Errorf("config: %s: %w", msg, err)
}
