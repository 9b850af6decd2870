package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEntry is returned for entries that fail validation.
	ErrInvalidEntry = errors.New("store: invalid entry")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// PersistenceError reports a failed write or read of the emotion log.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
