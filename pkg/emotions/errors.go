package emotions

import "errors"

var (
	// ErrNotFound is returned when an emotion is not in the vocabulary.
	ErrNotFound = errors.New("emotion not found")

	// ErrInvalidVocabulary is returned when a vocabulary file is malformed.
	ErrInvalidVocabulary = errors.New("invalid vocabulary data")
)
