package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MockPlatform implements Platform for testing and for running without a
// camera attached.
type MockPlatform struct {
	// OpenFunc overrides Open when set.
	OpenFunc func(ctx context.Context, c Constraints) (Source, error)

	// Frame is returned by sources opened with the default OpenFunc.
	Frame []byte

	opens   atomic.Int32
	mu      sync.Mutex
	sources []*MockSource
}

// NewMockPlatform creates a mock platform serving a fixed frame.
func NewMockPlatform(frame []byte) *MockPlatform {
	return &MockPlatform{Frame: frame}
}

// Open calls OpenFunc or returns a new MockSource.
func (p *MockPlatform) Open(ctx context.Context, c Constraints) (Source, error) {
	p.opens.Add(1)
	if p.OpenFunc != nil {
		return p.OpenFunc(ctx, c)
	}
	src := NewMockSource(p.Frame, c)
	p.mu.Lock()
	p.sources = append(p.sources, src)
	p.mu.Unlock()
	return src, nil
}

// Opens returns how many times Open was called.
func (p *MockPlatform) Opens() int {
	return int(p.opens.Load())
}

// Sources returns every source opened by the default OpenFunc.
func (p *MockPlatform) Sources() []*MockSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MockSource(nil), p.sources...)
}

// MockSource serves a fixed frame from a single video track.
type MockSource struct {
	data  []byte
	c     Constraints
	seq   atomic.Uint64
	track *MockTrack
}

// NewMockSource creates a source returning data on every read.
func NewMockSource(data []byte, c Constraints) *MockSource {
	return &MockSource{
		data:  data,
		c:     c,
		track: &MockTrack{id: uuid.NewString()},
	}
}

// Tracks implements Source.
func (s *MockSource) Tracks() []Track { return []Track{s.track} }

// Track returns the underlying mock track.
func (s *MockSource) Track() *MockTrack { return s.track }

// Read implements Source.
func (s *MockSource) Read(ctx context.Context) (Frame, error) {
	if s.track.Stopped() {
		return Frame{}, ErrReleased
	}
	return Frame{
		Data:     s.data,
		Width:    s.c.Width,
		Height:   s.c.Height,
		Seq:      s.seq.Add(1),
		Captured: time.Now(),
	}, nil
}

// MockTrack records Stop calls.
type MockTrack struct {
	id    string
	stops atomic.Int32
}

// ID implements Track.
func (t *MockTrack) ID() string { return t.id }

// Kind implements Track.
func (t *MockTrack) Kind() string { return "video" }

// Stop implements Track.
func (t *MockTrack) Stop() { t.stops.Add(1) }

// Stopped reports whether Stop was called.
func (t *MockTrack) Stopped() bool { return t.stops.Load() > 0 }

// Stops returns how many times Stop was called.
func (t *MockTrack) Stops() int { return int(t.stops.Load()) }
