// Package camera owns the exclusive camera hardware resource.
//
// A Session acquires at most one Stream at a time from a Platform (the OS
// camera API) and releases it synchronously, stopping every underlying
// track. Acquire failures are classified into permission, not-found, busy
// and generic unavailable errors so callers can show a specific message.
package camera

import (
	"context"
	"time"
)

// FacingMode hints which camera to use on devices with several.
type FacingMode string

const (
	// FacingUser is the front/selfie camera.
	FacingUser FacingMode = "user"

	// FacingEnvironment is the rear/world camera.
	FacingEnvironment FacingMode = "environment"
)

// Constraints describe the requested capture format.
type Constraints struct {
	Width      int        `json:"width"`      // Frame width in pixels
	Height     int        `json:"height"`     // Frame height in pixels
	FacingMode FacingMode `json:"facing_mode"`
	Framerate  int        `json:"framerate"` // Target FPS
	Quality    int        `json:"quality"`   // JPEG quality 1-100
}

// Capture limits.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConstraints returns 640x480 from the user-facing camera, matching
// the default video surface size.
func DefaultConstraints() Constraints {
	return Constraints{
		Width:      640,
		Height:     480,
		FacingMode: FacingUser,
		Framerate:  30,
		Quality:    85,
	}
}

// Validate checks if the constraint values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Constraints) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.FacingMode != "" && c.FacingMode != FacingUser && c.FacingMode != FacingEnvironment {
		errors = append(errors, "facing_mode must be user or environment")
	}

	return errors
}

// Frame is one captured video frame, JPEG encoded.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Seq      uint64
	Captured time.Time
}

// Track is a single hardware media track. Stop must be idempotent.
type Track interface {
	ID() string
	Kind() string
	Stop()
}

// Source is an open camera as returned by a Platform.
type Source interface {
	// Tracks returns every track that must be stopped on release.
	Tracks() []Track

	// Read returns the current frame.
	Read(ctx context.Context) (Frame, error)
}

// Platform is the OS camera API.
type Platform interface {
	// Open requests a media stream under the given constraints.
	Open(ctx context.Context, c Constraints) (Source, error)
}
