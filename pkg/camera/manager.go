package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the constraints used for the next acquire and handles
// runtime updates from the API.
type Manager struct {
	constraints Constraints
	mu          sync.RWMutex

	// Called after a successful update
	OnChange func(c Constraints) error
}

// NewManager creates a manager starting from c. Zero constraints fall back
// to the defaults.
func NewManager(c Constraints) *Manager {
	if c == (Constraints{}) {
		c = DefaultConstraints()
	}
	return &Manager{constraints: c}
}

// Constraints returns the current constraints.
func (m *Manager) Constraints() Constraints {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.constraints
}

// Set replaces the constraints after validation.
func (m *Manager) Set(c Constraints) error {
	if errs := c.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConstraints, errs)
	}

	m.mu.Lock()
	m.constraints = c
	callback := m.OnChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(c); err != nil {
			return fmt.Errorf("failed to apply constraints: %w", err)
		}
	}
	return nil
}

// Update applies a partial update. A "preset" key is applied first, then
// the individual fields override it.
func (m *Manager) Update(params map[string]any) error {
	c := m.Constraints()

	if name, ok := params["preset"].(string); ok {
		p := GetPreset(name)
		if p == nil {
			return fmt.Errorf("%w: unknown preset %q", ErrInvalidConstraints, name)
		}
		c = *p
	}

	for key, value := range params {
		switch key {
		case "width":
			if v, ok := toInt(value); ok {
				c.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				c.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				c.Framerate = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				c.Quality = v
			}
		case "facing_mode":
			if v, ok := value.(string); ok {
				c.FacingMode = FacingMode(v)
			}
		}
	}

	return m.Set(c)
}

// JSON returns the current constraints as a map for API responses.
func (m *Manager) JSON() map[string]any {
	data, _ := json.Marshal(m.Constraints())
	var out map[string]any
	json.Unmarshal(data, &out)
	return out
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
