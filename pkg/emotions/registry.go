package emotions

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

//go:embed data/vocabulary.json
var embeddedVocabulary embed.FS

// Registry holds the product emotion vocabulary.
type Registry struct {
	mu       sync.RWMutex
	emotions map[string]Emotion
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		emotions: make(map[string]Emotion),
	}
}

// DefaultRegistry returns a registry preloaded with the built-in vocabulary.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.LoadBuiltIn(); err != nil {
		// The embedded file is part of the binary; failure is a build defect.
		panic(err)
	}
	return r
}

// LoadBuiltIn loads the embedded vocabulary into the registry.
func (r *Registry) LoadBuiltIn() error {
	data, err := embeddedVocabulary.ReadFile("data/vocabulary.json")
	if err != nil {
		return fmt.Errorf("failed to read embedded vocabulary: %w", err)
	}
	return r.load(data)
}

// LoadFromFile loads a custom vocabulary from a JSON file on disk.
// Entries are merged into the registry; existing names are replaced.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	return r.load(data)
}

func (r *Registry) load(data []byte) error {
	var raw vocabularyFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVocabulary, err)
	}
	if len(raw.Emotions) == 0 {
		return fmt.Errorf("%w: no emotions defined", ErrInvalidVocabulary)
	}
	for _, e := range raw.Emotions {
		if e.Name == "" {
			return fmt.Errorf("%w: emotion without name", ErrInvalidVocabulary)
		}
		r.Register(e)
	}
	return nil
}

// Register adds an emotion to the registry.
func (r *Registry) Register(e Emotion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.emotions[e.Name]; !exists {
		r.order = append(r.order, e.Name)
	}
	r.emotions[e.Name] = e
}

// Get retrieves an emotion by name (case-insensitive).
func (r *Registry) Get(name string) (Emotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.emotions[name]; ok {
		return e, nil
	}
	for n, e := range r.emotions {
		if strings.EqualFold(n, name) {
			return e, nil
		}
	}
	return Emotion{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Has reports whether name is part of the vocabulary.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// All returns every emotion in registration order.
func (r *Registry) All() []Emotion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Emotion, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.emotions[n])
	}
	return out
}

// List returns all registered emotion names, sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.emotions))
	for name := range r.emotions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered emotions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.emotions)
}

// ByColor groups emotion names by palette colour.
func (r *Registry) ByColor() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make(map[string][]string)
	for name, e := range r.emotions {
		groups[e.Color] = append(groups[e.Color], name)
	}
	for c := range groups {
		sort.Strings(groups[c])
	}
	return groups
}

// Search finds emotions whose name or description contains query
// (case-insensitive).
func (r *Registry) Search(query string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	var matches []string
	for name, e := range r.emotions {
		if strings.Contains(strings.ToLower(name), q) ||
			strings.Contains(strings.ToLower(e.Description), q) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}
