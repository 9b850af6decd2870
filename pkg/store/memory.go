package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps entries in process memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Save appends e.
func (m *Memory) Save(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return wrap("save", err)
	}
	if err := e.prepare(); err != nil {
		return wrap("save", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrap("save", ErrClosed)
	}
	m.entries = append(m.entries, e)
	return nil
}

// List returns up to limit entries for userID, newest first.
func (m *Memory) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	out := m.filter(userID, time.Time{})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Since returns every entry for userID at or after since, oldest first.
func (m *Memory) Since(ctx context.Context, userID string, since time.Time) ([]Entry, error) {
	out := m.filter(userID, since)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Entries returns a copy of every stored entry in insertion order.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) filter(userID string, since time.Time) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	for _, e := range m.entries {
		if e.UserID == userID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// Verify Memory implements History at compile time.
var _ History = (*Memory)(nil)
