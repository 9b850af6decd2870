package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/models"
)

// Mock implements Engine for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, frame Frame, set *models.Set) (*Result, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Seq    uint64 // Frame sequence for Detect
	Time   time.Time
}

// NewMock creates a mock engine that always finds a neutral face.
func NewMock() *Mock {
	return WithScores(emotions.Scores{emotions.CategoryNeutral: 0.9})
}

// WithScores returns a mock that always finds a face with the given scores.
func WithScores(scores emotions.Scores) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, frame Frame, set *models.Set) (*Result, error) {
			return &Result{
				FaceFound:   true,
				Scores:      scores,
				Box:         Box{X: float64(frame.Width) / 4, Y: float64(frame.Height) / 4, W: float64(frame.Width) / 2, H: float64(frame.Height) / 2, Score: 0.99},
				FrameWidth:  frame.Width,
				FrameHeight: frame.Height,
			}, nil
		},
	}
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, frame Frame, set *models.Set) (*Result, error) {
			return nil, WrapError("mock", err)
		},
	}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, frame Frame, set *models.Set) (*Result, error) {
	m.record("Detect", frame.Seq)
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, frame, set)
	}
	return NoFace(frame), nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", 0)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Seq:    seq,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Engine at compile time.
var _ Engine = (*Mock)(nil)
