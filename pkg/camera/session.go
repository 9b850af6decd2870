package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-moodcam/internal/log"
)

// Stream is an acquired camera stream. It is only valid until the owning
// Session releases it.
type Stream struct {
	id          string
	constraints Constraints
	acquired    time.Time
	source      Source
	released    atomic.Bool
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// Constraints returns the constraints the stream was acquired with.
func (s *Stream) Constraints() Constraints { return s.constraints }

// Acquired returns when the stream was opened.
func (s *Stream) Acquired() time.Time { return s.acquired }

// Released reports whether the stream has been released.
func (s *Stream) Released() bool { return s.released.Load() }

// Frame reads the current frame. It fails with ErrReleased once the stream
// has been released.
func (s *Stream) Frame(ctx context.Context) (Frame, error) {
	if s.released.Load() {
		return Frame{}, ErrReleased
	}
	return s.source.Read(ctx)
}

// Session holds at most one acquired Stream.
type Session struct {
	platform Platform
	logger   *slog.Logger

	mu      sync.Mutex
	stream  *Stream
	pending bool
}

// NewSession creates a capture session on platform.
func NewSession(platform Platform) *Session {
	return &Session{
		platform: platform,
		logger:   log.Component("camera"),
	}
}

// Acquire opens a stream with the given constraints. It fails with
// ErrAlreadyAcquired while a stream is held or another acquire is in
// progress. Platform failures are classified (see Classify).
func (s *Session) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if errs := c.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConstraints, errs)
	}

	s.mu.Lock()
	if s.stream != nil || s.pending {
		s.mu.Unlock()
		return nil, ErrAlreadyAcquired
	}
	s.pending = true
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "camera.Acquire")
	defer span.End()

	src, err := s.platform.Open(ctx, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false

	if err != nil {
		cerr := Classify(err)
		span.RecordError(cerr)
		s.logger.Warn("camera acquire failed", "kind", cerr.Kind, "error", err)
		return nil, cerr
	}

	s.stream = &Stream{
		id:          uuid.NewString(),
		constraints: c,
		acquired:    time.Now(),
		source:      src,
	}
	s.logger.Info("camera acquired",
		"stream", s.stream.id,
		"width", c.Width,
		"height", c.Height,
		"facing", c.FacingMode)
	return s.stream, nil
}

// Release stops every track of the held stream. It is synchronous and a
// no-op when nothing is held.
func (s *Session) Release() {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()

	if st == nil {
		return
	}
	st.released.Store(true)
	for _, t := range st.source.Tracks() {
		t.Stop()
	}
	s.logger.Info("camera released", "stream", st.id, "held", time.Since(st.acquired))
}

// Stream returns the held stream, or nil.
func (s *Session) Stream() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Held reports whether a stream is currently held.
func (s *Session) Held() bool {
	return s.Stream() != nil
}
