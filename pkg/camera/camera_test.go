package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	p := NewMockPlatform([]byte("jpeg"))
	s := NewSession(p)

	st, err := s.Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if st.ID() == "" {
		t.Error("stream should have an id")
	}
	if !s.Held() {
		t.Error("session should hold a stream")
	}

	f, err := st.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if string(f.Data) != "jpeg" || f.Width != 640 || f.Height != 480 {
		t.Errorf("unexpected frame %+v", f)
	}

	s.Release()
	if s.Held() {
		t.Error("session should not hold a stream after release")
	}
	if !st.Released() {
		t.Error("stream should be marked released")
	}
	if !p.Sources()[0].Track().Stopped() {
		t.Error("track was not stopped")
	}
	if _, err := st.Frame(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}

	// Release is idempotent.
	s.Release()
	if n := p.Sources()[0].Track().Stops(); n != 1 {
		t.Errorf("track stopped %d times, want 1", n)
	}
}

func TestAcquire_AlreadyAcquired(t *testing.T) {
	p := NewMockPlatform(nil)
	s := NewSession(p)

	if _, err := s.Acquire(context.Background(), DefaultConstraints()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire(context.Background(), DefaultConstraints()); !errors.Is(err, ErrAlreadyAcquired) {
		t.Fatalf("expected ErrAlreadyAcquired, got %v", err)
	}
	if p.Opens() != 1 {
		t.Errorf("platform opened %d times, want 1", p.Opens())
	}

	s.Release()
	if _, err := s.Acquire(context.Background(), DefaultConstraints()); err != nil {
		t.Errorf("re-acquire after release: %v", err)
	}
}

func TestAcquire_ConcurrentPending(t *testing.T) {
	gate := make(chan struct{})
	p := NewMockPlatform(nil)
	p.OpenFunc = func(ctx context.Context, c Constraints) (Source, error) {
		<-gate
		return NewMockSource(nil, c), nil
	}
	s := NewSession(p)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = s.Acquire(context.Background(), DefaultConstraints())
	}()

	deadline := time.Now().Add(time.Second)
	for p.Opens() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first acquire never reached the platform")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Acquire(context.Background(), DefaultConstraints()); !errors.Is(err, ErrAlreadyAcquired) {
		t.Errorf("expected ErrAlreadyAcquired while pending, got %v", err)
	}
	close(gate)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first acquire: %v", firstErr)
	}
	if p.Opens() != 1 {
		t.Errorf("platform opened %d times, want 1", p.Opens())
	}
}

func TestAcquire_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		kind Kind
	}{
		{"eacces", fmt.Errorf("open /dev/video0: %w", syscall.EACCES), ErrPermissionDenied, KindPermissionDenied},
		{"os permission", os.ErrPermission, ErrPermissionDenied, KindPermissionDenied},
		{"browser style", errors.New("NotAllowedError: Permission denied"), ErrPermissionDenied, KindPermissionDenied},
		{"enoent", fmt.Errorf("open /dev/video3: %w", syscall.ENOENT), ErrNotFound, KindNotFound},
		{"no device", errors.New("no camera attached"), ErrNotFound, KindNotFound},
		{"ebusy", syscall.EBUSY, ErrBusy, KindBusy},
		{"in use", errors.New("device is in use by another process"), ErrBusy, KindBusy},
		{"generic", errors.New("something odd"), ErrUnavailable, KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMockPlatform(nil)
			p.OpenFunc = func(ctx context.Context, c Constraints) (Source, error) {
				return nil, tt.err
			}
			s := NewSession(p)

			_, err := s.Acquire(context.Background(), DefaultConstraints())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.kind)
			}
			if s.Held() {
				t.Error("failed acquire must not hold a stream")
			}
		})
	}
}

func TestAcquire_InvalidConstraints(t *testing.T) {
	p := NewMockPlatform(nil)
	s := NewSession(p)

	c := DefaultConstraints()
	c.Width = 10
	if _, err := s.Acquire(context.Background(), c); !errors.Is(err, ErrInvalidConstraints) {
		t.Errorf("expected ErrInvalidConstraints, got %v", err)
	}
	if p.Opens() != 0 {
		t.Error("platform should not be called for invalid constraints")
	}
}

func TestKindOf_NonCameraError(t *testing.T) {
	if KindOf(errors.New("x")) != KindUnavailable {
		t.Error("plain errors should report unavailable")
	}
	if KindOf(nil) != KindUnavailable {
		t.Error("nil should report unavailable")
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		p := GetPreset(name)
		if p == nil {
			t.Fatalf("preset %q missing", name)
		}
		if errs := p.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("unknown preset should be nil")
	}
	if GetPreset(PresetEnvironment).FacingMode != FacingEnvironment {
		t.Error("environment preset should use the rear camera")
	}
}

func TestManager_Update(t *testing.T) {
	m := NewManager(Constraints{})
	if m.Constraints() != DefaultConstraints() {
		t.Fatal("zero constraints should fall back to defaults")
	}

	var applied Constraints
	m.OnChange = func(c Constraints) error {
		applied = c
		return nil
	}

	if err := m.Update(map[string]any{"preset": "720p", "framerate": float64(15)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := m.Constraints()
	if got.Width != 1280 || got.Height != 720 || got.Framerate != 15 {
		t.Errorf("unexpected constraints %+v", got)
	}
	if applied != got {
		t.Error("OnChange not called with new constraints")
	}

	if err := m.Update(map[string]any{"width": 5}); !errors.Is(err, ErrInvalidConstraints) {
		t.Errorf("expected ErrInvalidConstraints, got %v", err)
	}
	if m.Constraints().Width != 1280 {
		t.Error("invalid update must not change constraints")
	}

	if err := m.Update(map[string]any{"preset": "4k"}); err == nil {
		t.Error("expected error for unknown preset")
	}

	if m.JSON()["facing_mode"] != "user" {
		t.Errorf("JSON facing_mode = %v", m.JSON()["facing_mode"])
	}
}
