// Package emotions turns raw facial-expression scores into the product's
// emotion vocabulary.
//
// The inference engine reports scores in the model's native categories
// (happy, sad, fearful, ...). Classify picks a single winning category and
// translates it into a product label (Happy, Sad, Anxious, ...). The
// Registry holds the full vocabulary a user can log manually, including
// labels the model never produces (Calm, Tired, ...).
package emotions

import "time"

// Scores maps an expression category to a probability in [0,1].
// Scores are not guaranteed to sum to 1 and categories with no signal may
// be absent.
type Scores map[string]float64

// Observation is one classified detection result. It is immutable once
// produced; a newer observation replaces it rather than mutating it.
type Observation struct {
	// Emotion is the product label (e.g. "Anxious").
	Emotion string `json:"emotion"`

	// Category is the raw model category that won (e.g. "fearful").
	Category string `json:"category"`

	// Confidence is exactly the winning raw score.
	Confidence float64 `json:"confidence"`

	// Timestamp is when the observation was classified.
	Timestamp time.Time `json:"timestamp"`
}

// IsZero reports whether o is the zero observation.
func (o Observation) IsZero() bool {
	return o.Emotion == "" && o.Timestamp.IsZero()
}

// Emotion is one entry of the product vocabulary.
type Emotion struct {
	// Name is the label shown to the user and stored in the log.
	Name string `json:"name"`

	// Icon is an emoji used by front-ends.
	Icon string `json:"icon"`

	// Color is the palette key used by front-ends.
	Color string `json:"color"`

	// Description explains when to pick this emotion.
	Description string `json:"description"`
}

// vocabularyFile is the JSON structure of a vocabulary file.
type vocabularyFile struct {
	Version  int       `json:"version"`
	Emotions []Emotion `json:"emotions"`
}
