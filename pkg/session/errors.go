package session

import (
	"errors"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/store"
)

var (
	// ErrNoObservation is returned by Save when nothing has been detected.
	ErrNoObservation = errors.New("session: no observation to save")

	// ErrNeedsReset is returned by Start from the Error state.
	ErrNeedsReset = errors.New("session: reset required after error")

	// ErrCancelled is returned by Start when Stop, Reset or Close
	// interrupted it.
	ErrCancelled = errors.New("session: start cancelled")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: controller closed")
)

// PersistenceError is returned by Save when the store fails.
type PersistenceError = store.PersistenceError

// cameraKind maps an acquire error to an error kind.
func cameraKind(err error) Kind {
	if errors.Is(err, camera.ErrAlreadyAcquired) {
		return KindCameraBusy
	}
	switch camera.KindOf(err) {
	case camera.KindPermissionDenied:
		return KindCameraPermissionDenied
	case camera.KindNotFound:
		return KindCameraNotFound
	case camera.KindBusy:
		return KindCameraBusy
	default:
		return KindCameraUnavailable
	}
}
