package models

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad matches every model load failure.
	ErrModelLoad = errors.New("models: load failed")

	// ErrAssetsMissing is returned when the model files are not present at
	// the asset source. Fetch them with moodcam-fetch.
	ErrAssetsMissing = errors.New("models: model files not found")

	// ErrUnknownModel is returned for a model name outside the fixed set.
	ErrUnknownModel = errors.New("models: unknown model")
)

// LoadError reports the failure of a single model.
type LoadError struct {
	Model Name
	Err   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("models: load %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes every LoadError match ErrModelLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrModelLoad
}
