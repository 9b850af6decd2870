package session

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/detection"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
)

// State is the controller's lifecycle state.
type State int

const (
	// Idle means no session is active.
	Idle State = iota
	// ModelsLoading means the model registry is loading.
	ModelsLoading
	// Ready means the models are loaded and the camera is about to be requested.
	Ready
	// CapturePending means the camera has been requested.
	CapturePending
	// Capturing means the stream is held and the detection loop is running.
	Capturing
	// Error means start failed; see the error Kind. Reset returns to Idle.
	Error
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ModelsLoading:
		return "models_loading"
	case Ready:
		return "ready"
	case CapturePending:
		return "capture_pending"
	case Capturing:
		return "capturing"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Error; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", b)
}

// active reports whether Start should be a no-op in s.
func (s State) active() bool {
	return s == ModelsLoading || s == Ready || s == CapturePending || s == Capturing
}

// Kind classifies the failure behind the Error state.
type Kind int

const (
	// KindNone is the zero kind, used outside the Error state.
	KindNone Kind = iota
	// KindModelLoad means a model failed to load.
	KindModelLoad
	// KindCameraPermissionDenied means camera access was refused.
	KindCameraPermissionDenied
	// KindCameraNotFound means no camera matched.
	KindCameraNotFound
	// KindCameraBusy means the camera is in use elsewhere.
	KindCameraBusy
	// KindCameraUnavailable is any other camera failure.
	KindCameraUnavailable
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindModelLoad:
		return "model_load"
	case KindCameraPermissionDenied:
		return "camera_permission_denied"
	case KindCameraNotFound:
		return "camera_not_found"
	case KindCameraBusy:
		return "camera_busy"
	case KindCameraUnavailable:
		return "camera_unavailable"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Message returns the user-facing message for a kind.
func (k Kind) Message() string {
	switch k {
	case KindModelLoad:
		return "Failed to load face detection models. Please try again."
	case KindCameraPermissionDenied:
		return "Camera access was denied. Please check permissions."
	case KindCameraNotFound:
		return "No camera was found. Please connect a camera."
	case KindCameraBusy:
		return "The camera is in use by another application."
	case KindCameraUnavailable:
		return "Could not access your camera."
	default:
		return ""
	}
}

// Status is a snapshot of the controller.
type Status struct {
	SessionID   string                `json:"session_id,omitempty"`
	State       State                 `json:"state"`
	ErrorKind   Kind                  `json:"error_kind,omitempty"`
	Message     string                `json:"message,omitempty"`
	Observation *emotions.Observation `json:"observation,omitempty"`
	StreamID    string                `json:"stream_id,omitempty"`
	Models      map[string]string     `json:"models,omitempty"`
	Loop        detection.Stats       `json:"loop"`
	Since       time.Time             `json:"since"`
}
