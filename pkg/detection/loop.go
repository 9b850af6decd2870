// Package detection runs the periodic inference cycle.
//
// A Loop fires a TickFunc on a fixed interval. At most one tick is in
// flight: when a tick is still running at the next interval that interval
// is skipped, never queued. Every tick gets a monotonically increasing
// generation; after Cancel, Current reports false for every generation
// issued so far, letting the publisher drop results that resolve late.
package detection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-moodcam/internal/log"
)

// DefaultInterval is the default time between ticks.
const DefaultInterval = 200 * time.Millisecond

// TickFunc performs one inference cycle. ctx is cancelled when the loop is
// cancelled; gen identifies the tick for Current.
type TickFunc func(ctx context.Context, gen uint64) error

// CancelFunc stops a started loop.
type CancelFunc func()

// Config configures a Loop.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Option is a functional option for configuring a Loop.
type Option func(*Config)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Logger:   log.Component("detection"),
	}
}

// Stats counts loop activity since creation.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`
}

// run is one Start..Cancel span.
type run struct {
	cancel   context.CancelFunc
	canceled bool
}

// Loop schedules ticks on a fixed interval.
type Loop struct {
	cfg Config

	mu      sync.Mutex
	current *run
	gen     uint64 // last issued generation
	cutoff  uint64 // generations <= cutoff are stale

	busy atomic.Bool

	ticks     atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64

	tickCounter    metric.Int64Counter
	skipCounter    metric.Int64Counter
	failCounter    metric.Int64Counter
	discardCounter metric.Int64Counter
	tickDuration   metric.Float64Histogram
}

// New creates a stopped loop.
func New(opts ...Option) *Loop {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("detection")
	}

	l := &Loop{cfg: cfg}
	l.tickCounter, _ = meter.Int64Counter("moodcam.detection.ticks",
		metric.WithDescription("Detection ticks started"))
	l.skipCounter, _ = meter.Int64Counter("moodcam.detection.skipped",
		metric.WithDescription("Intervals skipped because a tick was in flight"))
	l.failCounter, _ = meter.Int64Counter("moodcam.detection.failed",
		metric.WithDescription("Ticks that returned an error"))
	l.discardCounter, _ = meter.Int64Counter("moodcam.detection.discarded",
		metric.WithDescription("Tick results dropped after cancellation"))
	l.tickDuration, _ = meter.Float64Histogram("moodcam.detection.tick_duration",
		metric.WithDescription("Tick duration"),
		metric.WithUnit("s"))
	return l
}

// Interval returns the configured tick interval.
func (l *Loop) Interval() time.Duration {
	return l.cfg.Interval
}

// Start begins scheduling tick every interval. A loop that is already
// running is cancelled first. The returned CancelFunc is equivalent to
// Cancel for this run and is safe to call more than once.
func (l *Loop) Start(tick TickFunc) CancelFunc {
	l.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}

	l.mu.Lock()
	l.current = r
	l.mu.Unlock()

	go l.schedule(ctx, r, tick)

	l.cfg.Logger.Debug("detection loop started", "interval", l.cfg.Interval)
	return func() { l.cancelRun(r) }
}

func (l *Loop) schedule(ctx context.Context, r *run, tick TickFunc) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !l.busy.CompareAndSwap(false, true) {
			l.skipped.Add(1)
			l.skipCounter.Add(ctx, 1)
			continue
		}

		// Generation is issued under the same lock Cancel takes, so a tick
		// is either issued before the cutoff or not at all.
		l.mu.Lock()
		if r.canceled {
			l.mu.Unlock()
			l.busy.Store(false)
			return
		}
		l.gen++
		gen := l.gen
		l.mu.Unlock()

		go l.runTick(ctx, gen, tick)
	}
}

func (l *Loop) runTick(ctx context.Context, gen uint64, tick TickFunc) {
	defer l.busy.Store(false)

	ctx, span := tracer.Start(ctx, "detection.tick",
		trace.WithAttributes(attribute.Int64("generation", int64(gen))))
	defer span.End()

	l.ticks.Add(1)
	l.tickCounter.Add(ctx, 1)

	start := time.Now()
	err := tick(ctx, gen)
	l.tickDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		l.failed.Add(1)
		l.failCounter.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			l.cfg.Logger.Warn("detection tick failed", "generation", gen, "error", err)
		}
	}
}

// Cancel stops scheduling immediately. Every generation issued so far
// becomes stale. It is a no-op when the loop is not running.
func (l *Loop) Cancel() {
	l.mu.Lock()
	r := l.current
	l.mu.Unlock()
	if r != nil {
		l.cancelRun(r)
	}
}

func (l *Loop) cancelRun(r *run) {
	l.mu.Lock()
	if r.canceled {
		l.mu.Unlock()
		return
	}
	r.canceled = true
	l.cutoff = l.gen
	if l.current == r {
		l.current = nil
	}
	l.mu.Unlock()

	r.cancel()
	l.cfg.Logger.Debug("detection loop cancelled")
}

// Current reports whether gen was issued after the last cancellation.
func (l *Loop) Current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen > l.cutoff
}

// Accept is Current that also counts the result as discarded when stale.
func (l *Loop) Accept(gen uint64) bool {
	if l.Current(gen) {
		return true
	}
	l.discarded.Add(1)
	l.discardCounter.Add(context.Background(), 1)
	return false
}

// Running reports whether ticks are being scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

// Busy reports whether a tick is in flight.
func (l *Loop) Busy() bool {
	return l.busy.Load()
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:     l.ticks.Load(),
		Skipped:   l.skipped.Load(),
		Failed:    l.failed.Load(),
		Discarded: l.discarded.Load(),
	}
}
