package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/teslashibe/go-moodcam/internal/log"
)

// DefaultLoadTimeout is the default deadline for one model load.
const DefaultLoadTimeout = 2 * time.Minute

// Config configures a Registry.
type Config struct {
	// Specs lists the files of each model (default: ONNXSpecs).
	Specs []Spec

	// Precheck probes the detector's first file before loading, so a
	// missing asset directory fails fast with ErrAssetsMissing.
	Precheck bool

	// LoadTimeout bounds a single model load. A load is not tied to the
	// caller that started it, so this is its only deadline.
	LoadTimeout time.Duration

	// Logger for load progress.
	Logger *slog.Logger
}

// Option is a functional option for configuring a Registry.
type Option func(*Config)

// WithSpecs sets the model file specs.
func WithSpecs(specs []Spec) Option {
	return func(c *Config) { c.Specs = specs }
}

// WithPrecheck enables or disables the asset pre-check.
func WithPrecheck(enabled bool) Option {
	return func(c *Config) { c.Precheck = enabled }
}

// WithLoadTimeout sets the per-model load deadline.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Config) { c.LoadTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		Specs:    ONNXSpecs(),
		Precheck:    true,
		LoadTimeout: DefaultLoadTimeout,
		Logger:      log.Component("models"),
	}
}

// Registry loads and tracks readiness of the required models.
type Registry struct {
	source Source
	specs  map[Name]Spec
	cfg    Config

	mu      sync.RWMutex
	states  map[Name]State
	assets  map[Name]*Asset
	lastErr map[Name]error

	group singleflight.Group
	loads metric.Int64Counter
}

// NewRegistry creates a registry backed by source.
func NewRegistry(source Source, opts ...Option) (*Registry, error) {
	if source == nil {
		return nil, fmt.Errorf("models: source is required")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("models")
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}

	specs := make(map[Name]Spec, len(cfg.Specs))
	for _, s := range cfg.Specs {
		specs[s.Name] = s
	}
	for _, n := range Names {
		if _, ok := specs[n]; !ok {
			return nil, fmt.Errorf("models: no spec for %s", n)
		}
	}

	loads, _ := meter.Int64Counter("moodcam.models.loads",
		metric.WithDescription("Model load attempts by model and outcome"))

	r := &Registry{
		source:  source,
		specs:   specs,
		cfg:     cfg,
		states:  make(map[Name]State, len(Names)),
		assets:  make(map[Name]*Asset, len(Names)),
		lastErr: make(map[Name]error),
		loads:   loads,
	}
	for _, n := range Names {
		r.states[n] = NotLoaded
	}
	return r, nil
}

// EnsureLoaded loads every model that is not yet Loaded and returns once all
// four are Loaded. It is idempotent and safe for concurrent use: callers
// racing on the same model share one in-flight load.
//
// When a model fails, EnsureLoaded returns an error matching ErrModelLoad
// (one *LoadError per failed model, joined). Failed models stay Failed and
// the others are unaffected, so a retry only reloads the failed ones.
func (r *Registry) EnsureLoaded(ctx context.Context) error {
	if r.IsReady() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "models.EnsureLoaded")
	defer span.End()

	if r.cfg.Precheck {
		if err := r.precheck(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "precheck failed")
			return err
		}
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, name := range Names {
		if r.State(name) == Loaded {
			continue
		}
		g.Go(func() error {
			// Errors are collected rather than returned so one failure does
			// not hide the others.
			if err := r.load(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "model load failed")
		return err
	}
	return nil
}

// precheck probes the detector asset when the source supports it.
func (r *Registry) precheck(ctx context.Context) error {
	prober, ok := r.source.(Prober)
	if !ok || r.State(Detector) == Loaded {
		return nil
	}
	if err := prober.Probe(ctx, r.specs[Detector]); err != nil {
		r.mu.Lock()
		if st := r.states[Detector]; st == NotLoaded || st == Failed {
			r.states[Detector] = Failed
			r.lastErr[Detector] = err
		}
		r.mu.Unlock()
		r.cfg.Logger.Error("model files not found; run moodcam-fetch to download them", "error", err)
		return &LoadError{Model: Detector, Err: err}
	}
	return nil
}

// load runs a single model load, collapsing concurrent calls. The shared
// load outlives any one caller; a caller whose ctx ends stops waiting
// without failing the load for the others.
func (r *Registry) load(ctx context.Context, name Name) error {
	ch := r.group.DoChan(string(name), func() (any, error) {
		r.mu.Lock()
		if r.states[name] == Loaded {
			r.mu.Unlock()
			return nil, nil
		}
		// Inside the flight the state can only be NotLoaded or Failed.
		r.states[name] = Loading
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LoadTimeout)
		defer cancel()
		ctx, span := tracer.Start(ctx, "models.load",
			trace.WithAttributes(attribute.String("model", string(name))))
		defer span.End()

		r.cfg.Logger.Debug("loading model", "model", name)
		start := time.Now()
		asset, err := r.source.Load(ctx, r.specs[name])
		if err == nil && asset == nil {
			err = fmt.Errorf("source returned no asset")
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		if err != nil {
			r.states[name] = Failed
			r.lastErr[name] = err
			r.loads.Add(ctx, 1, metric.WithAttributes(
				attribute.String("model", string(name)), attribute.String("outcome", "failed")))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.cfg.Logger.Warn("model load failed", "model", name, "error", err)
			return nil, &LoadError{Model: name, Err: err}
		}

		r.states[name] = Loaded
		r.assets[name] = asset
		delete(r.lastErr, name)
		r.loads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("model", string(name)), attribute.String("outcome", "loaded")))
		r.cfg.Logger.Info("model loaded", "model", name, "duration", time.Since(start))
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return &LoadError{Model: name, Err: ctx.Err()}
	}
}

// IsReady reports whether every model is Loaded.
func (r *Registry) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range Names {
		if r.states[n] != Loaded {
			return false
		}
	}
	return true
}

// State returns the load state of one model.
func (r *Registry) State(name Name) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[name]
}

// Err returns the last load error of a model, if it is Failed.
func (r *Registry) Err(name Name) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr[name]
}

// Snapshot returns the state of every model.
func (r *Registry) Snapshot() map[Name]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Name]State, len(r.states))
	for n, s := range r.states {
		out[n] = s
	}
	return out
}

// Set returns the currently loaded models.
func (r *Registry) Set() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assets := make([]*Asset, 0, len(r.assets))
	for _, a := range r.assets {
		assets = append(assets, a)
	}
	return NewSet(assets...)
}

// Spec returns the file spec of a model.
func (r *Registry) Spec(name Name) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return s, nil
}
