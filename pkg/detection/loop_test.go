package detection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoop_RunsTicks(t *testing.T) {
	l := New(WithInterval(5 * time.Millisecond))
	var n atomic.Int32
	cancel := l.Start(func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return nil
	})
	defer cancel()

	waitFor(t, func() bool { return n.Load() >= 3 }, "expected at least 3 ticks")
	if !l.Running() {
		t.Error("loop should report running")
	}
}

func TestLoop_DefaultInterval(t *testing.T) {
	if New().Interval() != 200*time.Millisecond {
		t.Errorf("default interval = %v", New().Interval())
	}
	if New(WithInterval(0)).Interval() != DefaultInterval {
		t.Error("non-positive interval should fall back to default")
	}
}

func TestLoop_SkipsWhileBusy(t *testing.T) {
	l := New(WithInterval(2 * time.Millisecond))

	release := make(chan struct{})
	var inflight, maxInflight, started atomic.Int32
	cancel := l.Start(func(ctx context.Context, gen uint64) error {
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			m := maxInflight.Load()
			if cur <= m || maxInflight.CompareAndSwap(m, cur) {
				break
			}
		}
		started.Add(1)
		<-release
		return nil
	})
	defer cancel()

	waitFor(t, func() bool { return l.Stats().Skipped >= 3 }, "expected skipped intervals while busy")
	if started.Load() != 1 {
		t.Errorf("started %d ticks while the first was blocked, want 1", started.Load())
	}
	if !l.Busy() {
		t.Error("loop should be busy")
	}

	close(release)
	waitFor(t, func() bool { return started.Load() >= 3 }, "loop did not resume after the tick resolved")
	if maxInflight.Load() != 1 {
		t.Errorf("max concurrent ticks = %d, want 1", maxInflight.Load())
	}
}

func TestLoop_CancelStopsScheduling(t *testing.T) {
	l := New(WithInterval(2 * time.Millisecond))
	var n atomic.Int32
	cancel := l.Start(func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return nil
	})

	waitFor(t, func() bool { return n.Load() >= 2 }, "expected ticks before cancel")
	cancel()
	// A tick already issued may still be finishing.
	time.Sleep(5 * time.Millisecond)
	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	if n.Load() != after {
		t.Errorf("ticks ran after cancel: %d -> %d", after, n.Load())
	}
	if l.Running() {
		t.Error("loop should not be running after cancel")
	}

	// Cancel is idempotent.
	cancel()
	l.Cancel()
}

func TestLoop_StaleGenerationAfterCancel(t *testing.T) {
	l := New(WithInterval(2 * time.Millisecond))

	type result struct {
		gen uint64
		ctx context.Context
	}
	got := make(chan result, 1)
	release := make(chan struct{})
	var once sync.Once
	cancel := l.Start(func(ctx context.Context, gen uint64) error {
		once.Do(func() { got <- result{gen, ctx} })
		<-release
		return nil
	})

	r := <-got
	if !l.Current(r.gen) {
		t.Fatal("in-flight tick should be current before cancel")
	}

	cancel()
	if l.Current(r.gen) {
		t.Error("tick issued before cancel must be stale")
	}
	if r.ctx.Err() == nil {
		t.Error("tick context should be cancelled")
	}
	if l.Accept(r.gen) {
		t.Error("Accept should reject a stale generation")
	}
	if l.Stats().Discarded != 1 {
		t.Errorf("discarded = %d, want 1", l.Stats().Discarded)
	}
	close(release)

	// A fresh run issues generations above the cutoff.
	next := make(chan uint64, 1)
	cancel = l.Start(func(ctx context.Context, gen uint64) error {
		select {
		case next <- gen:
		default:
		}
		return nil
	})
	defer cancel()
	gen := <-next
	if gen <= r.gen || !l.Current(gen) {
		t.Errorf("new generation %d should be current (old %d)", gen, r.gen)
	}
}

func TestLoop_ErrorsDoNotStopLoop(t *testing.T) {
	l := New(WithInterval(2 * time.Millisecond))
	cancel := l.Start(func(ctx context.Context, gen uint64) error {
		return errors.New("inference failed")
	})
	defer cancel()

	waitFor(t, func() bool { return l.Stats().Failed >= 3 }, "expected repeated failing ticks")
	if l.Stats().Ticks < l.Stats().Failed {
		t.Error("every failed tick should also count as a tick")
	}
}

func TestLoop_RestartCancelsPrevious(t *testing.T) {
	l := New(WithInterval(2 * time.Millisecond))
	var first, second atomic.Int32
	l.Start(func(ctx context.Context, gen uint64) error {
		first.Add(1)
		return nil
	})
	waitFor(t, func() bool { return first.Load() >= 1 }, "first run never ticked")

	cancel := l.Start(func(ctx context.Context, gen uint64) error {
		second.Add(1)
		return nil
	})
	defer cancel()

	time.Sleep(5 * time.Millisecond)
	before := first.Load()
	waitFor(t, func() bool { return second.Load() >= 3 }, "second run never ticked")
	if first.Load() != before {
		t.Error("first run kept ticking after restart")
	}
}
