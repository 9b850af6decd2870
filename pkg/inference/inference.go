// Package inference runs face detection and expression recognition on
// camera frames.
//
// The package abstracts the neural networks behind a single Engine
// interface. The OpenCV engine is the production implementation; Mock is
// used in tests and when running without models.
//
// Example usage:
//
//	engine := inference.NewOpenCV(inference.WithScoreThreshold(0.6))
//	defer engine.Close()
//
//	res, err := engine.Detect(ctx, frame, registry.Set())
//	if err == nil && res.FaceFound {
//	    obs := emotions.Classify(res.Scores)
//	}
package inference

import (
	"context"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/models"
)

// Engine detects a single face in a frame and scores its expression.
// All implementations must satisfy this interface.
type Engine interface {
	// Detect runs detection on frame using the loaded models. A frame
	// without a face is not an error: the result has FaceFound false.
	Detect(ctx context.Context, frame Frame, set *models.Set) (*Result, error)

	// Close releases any resources held by the engine.
	Close() error
}

// Frame is the image handed to an engine.
type Frame = camera.Frame

// Point is a pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a face bounding box in pixels.
type Box struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Score float64 `json:"score"`
}

// Center returns the box centre.
func (b Box) Center() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Result is the outcome of one detection.
type Result struct {
	// FaceFound is false when no face was detected.
	FaceFound bool `json:"face_found"`

	// Scores holds per-category expression probabilities.
	Scores emotions.Scores `json:"scores,omitempty"`

	// Box is the detected face.
	Box Box `json:"box"`

	// Landmarks are facial keypoints in pixels.
	Landmarks []Point `json:"landmarks,omitempty"`

	// Descriptor is the face embedding, when the engine computes one.
	Descriptor []float32 `json:"-"`

	// FrameWidth and FrameHeight are the dimensions the box refers to.
	FrameWidth  int `json:"frame_width"`
	FrameHeight int `json:"frame_height"`
}

// NoFace returns a result for a frame without a face.
func NoFace(frame Frame) *Result {
	return &Result{FrameWidth: frame.Width, FrameHeight: frame.Height}
}
