package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrInference matches every failure of a detection call.
	ErrInference = errors.New("inference: detection failed")

	// ErrModelsNotReady is returned when the model set is incomplete.
	ErrModelsNotReady = errors.New("inference: models not ready")

	// ErrEmptyFrame is returned for frames that decode to nothing.
	ErrEmptyFrame = errors.New("inference: empty frame")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("inference: engine closed")
)

// EngineError wraps an error with engine context.
type EngineError struct {
	Engine string
	Err    error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is makes every EngineError match ErrInference.
func (e *EngineError) Is(target error) bool {
	return target == ErrInference
}

// WrapError wraps an error with engine context.
func WrapError(engine string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Engine: engine, Err: err}
}
