package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStage     = errors.New("unknown pipeline stage")
	ErrStageMismatch    = errors.New("handler does not belong to stage")
	ErrNilHandler       = errors.New("handler is nil")
	ErrEmptyExtensionID = errors.New("extension id is required")
	ErrUnknownHandler   = errors.New("unknown handler variant")
	ErrHandlerPanic     = errors.New("handler panicked")

	ErrNilRegistry   = errors.New("pipeline registry is required")
	ErrNilSender     = errors.New("sender is required")
	ErrInvalidPolicy = errors.New("invalid failure policy")
	ErrNilRequest    = errors.New("request state is required")
	ErrNilResponse   = errors.New("sender returned no response")
)

// HookError reports a hook that failed during a run.
type HookError struct {
	RunID       string
	Stage       Stage
	ExtensionID string
	Priority    int
	Err         error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s@%s (priority %d): %v", e.ExtensionID, e.Stage, e.Priority, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
