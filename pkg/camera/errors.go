package camera

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
)

// Kind classifies an acquire failure.
type Kind int

const (
	// KindUnavailable is a generic failure.
	KindUnavailable Kind = iota
	// KindPermissionDenied means the user or OS refused camera access.
	KindPermissionDenied
	// KindNotFound means no matching camera exists.
	KindNotFound
	// KindBusy means the camera is held by another process.
	KindBusy
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	default:
		return "unavailable"
	}
}

// Message returns the user-facing explanation for a kind.
func (k Kind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "Camera access was denied. Please check permissions."
	case KindNotFound:
		return "No camera was found. Please connect a camera."
	case KindBusy:
		return "The camera is in use by another application."
	default:
		return "Could not access your camera."
	}
}

var (
	// ErrPermissionDenied matches acquire failures of KindPermissionDenied.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrNotFound matches acquire failures of KindNotFound.
	ErrNotFound = errors.New("camera: not found")

	// ErrBusy matches acquire failures of KindBusy.
	ErrBusy = errors.New("camera: busy")

	// ErrUnavailable matches acquire failures of KindUnavailable.
	ErrUnavailable = errors.New("camera: unavailable")

	// ErrAlreadyAcquired is returned by Acquire while a stream is held.
	ErrAlreadyAcquired = errors.New("camera: stream already acquired")

	// ErrReleased is returned when reading from a released stream.
	ErrReleased = errors.New("camera: stream released")

	// ErrInvalidConstraints is returned for out-of-range constraints.
	ErrInvalidConstraints = errors.New("camera: invalid constraints")
)

func (k Kind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindNotFound:
		return ErrNotFound
	case KindBusy:
		return ErrBusy
	default:
		return ErrUnavailable
	}
}

// Error is a classified acquire failure.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with a kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind.sentinel(), e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a camera error. Errors that are not camera
// errors report KindUnavailable.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnavailable
}

// Classify maps a raw platform error to a camera Error. Typed errors and
// errno values are checked first, then the message is matched against
// known keywords.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return NewError(KindPermissionDenied, err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ENXIO):
		return NewError(KindNotFound, err)
	case errors.Is(err, syscall.EBUSY):
		return NewError(KindBusy, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission", "not permitted", "denied", "notallowed"):
		return NewError(KindPermissionDenied, err)
	case containsAny(msg, "busy", "in use", "notreadable", "could not start"):
		return NewError(KindBusy, err)
	case containsAny(msg, "no such device", "not found", "no camera", "notfound", "overconstrained"):
		return NewError(KindNotFound, err)
	}
	return NewError(KindUnavailable, err)
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
