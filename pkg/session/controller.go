// Package session implements the emotion detection session: a state machine
// that loads the models, acquires the camera, runs the detection loop and
// publishes the latest observation.
//
// Every start attempt gets an epoch; every detection tick gets a
// generation from the loop. A result is published only when both are still
// current, so nothing from before the latest Stop reaches subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/detection"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/models"
	"github.com/teslashibe/go-moodcam/pkg/store"
)

// Registry is the model registry used by the controller.
type Registry interface {
	EnsureLoaded(ctx context.Context) error
	Set() *models.Set
	Snapshot() map[models.Name]models.State
}

// Capture is the camera session used by the controller.
type Capture interface {
	Acquire(ctx context.Context, c camera.Constraints) (*camera.Stream, error)
	Release()
}

// RenderTargets are caller-owned sinks for the live frame and the detection
// drawing. Either may be nil. They are called from the detection loop and
// must not block for long.
type RenderTargets struct {
	// Video receives every frame read while capturing.
	Video func(frame camera.Frame)

	// Overlay receives each current detection result with its frame.
	Overlay func(frame camera.Frame, res *inference.Result)
}

// Config configures a Controller.
type Config struct {
	UserID      string
	Interval    time.Duration
	Constraints func() camera.Constraints
	Targets     RenderTargets
	Logger      *slog.Logger
}

// Option is a functional option for configuring a Controller.
type Option func(*Config)

// WithUserID sets the user the saved entries belong to.
func WithUserID(id string) Option {
	return func(c *Config) { c.UserID = id }
}

// WithInterval sets the detection interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

// WithConstraints sets the camera constraints source, read on every start.
func WithConstraints(fn func() camera.Constraints) Option {
	return func(c *Config) { c.Constraints = fn }
}

// WithTargets sets the render targets.
func WithTargets(t RenderTargets) Option {
	return func(c *Config) { c.Targets = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		UserID:      "local",
		Interval:    detection.DefaultInterval,
		Constraints: camera.DefaultConstraints,
		Logger:      log.Component("session"),
	}
}

// Controller runs at most one detection session at a time.
type Controller struct {
	cfg      Config
	registry Registry
	capture  Capture
	engine   inference.Engine
	store    store.Store
	loop     *detection.Loop

	mu         sync.Mutex
	state      State
	kind       Kind
	err        error
	epoch      uint64
	sessionID  string
	stream     *camera.Stream
	cancelLoop detection.CancelFunc
	obs        emotions.Observation
	lastGen    uint64
	since      time.Time
	closed     bool

	// Serialises camera acquisition across epochs, so a start that follows
	// a cancelled one waits for the old acquire to resolve and release.
	acquireMu sync.Mutex

	// Held while publishing a result; Stop takes it as a barrier.
	publishMu sync.Mutex

	// Serialises status delivery.
	notifyMu sync.Mutex

	subMu     sync.RWMutex
	nextSub   int
	obsSubs   map[int]func(emotions.Observation)
	stateSubs map[int]func(Status)

	starts metric.Int64Counter
	saves  metric.Int64Counter
}

// New creates an idle controller.
func New(registry Registry, capture Capture, engine inference.Engine, st store.Store, opts ...Option) *Controller {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("session")
	}
	if cfg.Constraints == nil {
		cfg.Constraints = camera.DefaultConstraints
	}

	c := &Controller{
		cfg:       cfg,
		registry:  registry,
		capture:   capture,
		engine:    engine,
		store:     st,
		loop:      detection.New(detection.WithInterval(cfg.Interval), detection.WithLogger(cfg.Logger)),
		since:     time.Now(),
		obsSubs:   make(map[int]func(emotions.Observation)),
		stateSubs: make(map[int]func(Status)),
	}
	c.starts, _ = meter.Int64Counter("moodcam.session.starts",
		metric.WithDescription("Session start attempts by outcome"))
	c.saves, _ = meter.Int64Counter("moodcam.session.saves",
		metric.WithDescription("Save attempts by outcome"))
	return c
}

// OnObservation registers fn to receive every published observation. The
// returned func unsubscribes. fn must not call Stop, Save, Reset or Close.
func (c *Controller) OnObservation(fn func(emotions.Observation)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.obsSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.obsSubs, id)
		c.subMu.Unlock()
	}
}

// OnState registers fn to receive a Status after every state change. The
// returned func unsubscribes.
func (c *Controller) OnState(fn func(Status)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.stateSubs, id)
		c.subMu.Unlock()
	}
}

// Start loads the models, acquires the camera and starts the detection
// loop. It returns once the controller is Capturing or has failed.
//
// Start is a no-op while a session is already starting or running, and
// returns ErrNeedsReset in the Error state. A start interrupted by Stop
// returns ErrCancelled; any stream it acquired is released.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.active() {
		c.mu.Unlock()
		return nil
	}
	if c.state == Error {
		c.mu.Unlock()
		return ErrNeedsReset
	}
	c.epoch++
	epoch := c.epoch
	c.sessionID = uuid.NewString()
	c.setStateLocked(ModelsLoading)
	sessionID := c.sessionID
	c.mu.Unlock()
	c.notify()

	ctx, span := tracer.Start(ctx, "session.Start",
		trace.WithAttributes(attribute.String("session", sessionID)))
	defer span.End()

	err := c.start(ctx, epoch)
	outcome := "capturing"
	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.starts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return err
}

func (c *Controller) start(ctx context.Context, epoch uint64) error {
	c.cfg.Logger.Info("loading models")
	loadErr := c.registry.EnsureLoaded(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrCancelled
	}
	if loadErr != nil {
		if ctx.Err() != nil {
			c.setStateLocked(Idle)
			c.mu.Unlock()
			c.notify()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		c.failLocked(KindModelLoad, loadErr)
		c.mu.Unlock()
		c.notify()
		return loadErr
	}
	c.setStateLocked(Ready)
	c.mu.Unlock()
	c.notify()

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrCancelled
	}
	c.setStateLocked(CapturePending)
	c.mu.Unlock()
	c.notify()

	constraints := c.cfg.Constraints()

	c.acquireMu.Lock()
	defer c.acquireMu.Unlock()

	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return ErrCancelled
	}

	stream, acqErr := c.capture.Acquire(ctx, constraints)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if acqErr == nil {
			c.cfg.Logger.Debug("releasing stream acquired after stop", "stream", stream.ID())
			c.capture.Release()
		}
		return ErrCancelled
	}
	if acqErr != nil {
		c.failLocked(cameraKind(acqErr), acqErr)
		c.mu.Unlock()
		c.notify()
		return acqErr
	}

	c.stream = stream
	c.lastGen = 0
	c.cancelLoop = c.loop.Start(c.tick(epoch, stream))
	c.setStateLocked(Capturing)
	c.mu.Unlock()
	c.notify()

	c.cfg.Logger.Info("detection started",
		"stream", stream.ID(),
		"interval", c.loop.Interval())
	return nil
}

// tick returns the loop body for one session.
func (c *Controller) tick(epoch uint64, stream *camera.Stream) detection.TickFunc {
	return func(ctx context.Context, gen uint64) error {
		frame, err := stream.Frame(ctx)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if v := c.cfg.Targets.Video; v != nil && c.current(epoch, gen) {
			v(frame)
		}

		res, err := c.engine.Detect(ctx, frame, c.registry.Set())
		if err != nil {
			return err
		}
		c.publish(epoch, gen, frame, res)
		return nil
	}
}

func (c *Controller) current(epoch, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch && c.state == Capturing && c.loop.Current(gen)
}

// publish delivers a detection result if it is still current.
func (c *Controller) publish(epoch, gen uint64, frame camera.Frame, res *inference.Result) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	accepted := c.loop.Accept(gen)
	if !accepted || c.epoch != epoch || c.state != Capturing || gen <= c.lastGen {
		c.mu.Unlock()
		return
	}
	c.lastGen = gen

	var obs emotions.Observation
	found := res != nil && res.FaceFound
	if found {
		obs = emotions.Classify(res.Scores)
		c.obs = obs
	}
	c.mu.Unlock()

	if o := c.cfg.Targets.Overlay; o != nil {
		o(frame, res)
	}
	if !found {
		return
	}

	c.subMu.RLock()
	subs := make([]func(emotions.Observation), 0, len(c.obsSubs))
	for _, fn := range c.obsSubs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(obs)
	}
}

// Stop ends the session: the loop is cancelled, the stream released and
// the observation cleared. No observation is published after Stop returns.
// Stop in Idle or Error is a no-op; an in-progress Start is cancelled.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == Idle || c.state == Error {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.setStateLocked(Idle)
	c.mu.Unlock()

	c.barrier()
	c.notify()
	c.cfg.Logger.Info("detection stopped")
}

// Reset returns from Error to Idle. It is a no-op in any other state.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.state != Error {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.setStateLocked(Idle)
	c.mu.Unlock()
	c.notify()
}

// Save hands the current observation and notes to the store. On success
// the session is stopped and the observation cleared. On failure a
// *PersistenceError is returned and nothing else changes, so the caller
// can retry.
func (c *Controller) Save(ctx context.Context, notes string) (store.Entry, error) {
	c.mu.Lock()
	if c.obs.IsZero() {
		c.mu.Unlock()
		return store.Entry{}, ErrNoObservation
	}
	ts := c.obs.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := store.Entry{
		ID:         uuid.NewString(),
		UserID:     c.cfg.UserID,
		Emotion:    c.obs.Emotion,
		Confidence: c.obs.Confidence,
		Notes:      notes,
		Source:     store.SourceDetected,
		Timestamp:  ts,
	}
	epoch := c.epoch
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "session.Save")
	defer span.End()

	if err := c.store.Save(ctx, entry); err != nil {
		var pe *PersistenceError
		if !errors.As(err, &pe) {
			pe = &PersistenceError{Op: "save", Err: err}
		}
		span.RecordError(pe)
		span.SetStatus(codes.Error, pe.Error())
		c.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		c.cfg.Logger.Warn("save failed", "error", err)
		return store.Entry{}, pe
	}
	c.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "saved")))
	c.cfg.Logger.Info("emotion saved", "emotion", entry.Emotion, "confidence", entry.Confidence)

	c.mu.Lock()
	if c.epoch != epoch || !c.state.active() {
		// The session already ended while the write was in flight.
		c.mu.Unlock()
		return entry, nil
	}
	c.teardownLocked()
	c.setStateLocked(Idle)
	c.mu.Unlock()

	c.barrier()
	c.notify()
	return entry, nil
}

// Close tears the controller down. Any session is stopped and the stream
// released; later calls to Start fail with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.teardownLocked()
	c.setStateLocked(Idle)
	c.mu.Unlock()

	c.barrier()
	c.notify()
	return nil
}

// Observation returns the current observation, if any.
func (c *Controller) Observation() (emotions.Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.obs, !c.obs.IsZero()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error behind the Error state.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		SessionID: c.sessionID,
		State:     c.state,
		ErrorKind: c.kind,
		Since:     c.since,
		Loop:      c.loop.Stats(),
	}
	if c.state == Error {
		st.Message = c.kind.Message()
	}
	if !c.obs.IsZero() {
		obs := c.obs
		st.Observation = &obs
	}
	if c.stream != nil {
		st.StreamID = c.stream.ID()
	}
	c.mu.Unlock()

	snap := c.registry.Snapshot()
	st.Models = make(map[string]string, len(snap))
	for n, s := range snap {
		st.Models[string(n)] = s.String()
	}
	return st
}

// teardownLocked invalidates the current epoch, cancels the loop, releases
// the stream and clears the observation. Callers must hold c.mu.
func (c *Controller) teardownLocked() {
	c.epoch++
	if c.cancelLoop != nil {
		c.cancelLoop()
		c.cancelLoop = nil
	}
	if c.stream != nil {
		c.capture.Release()
		c.stream = nil
	}
	c.obs = emotions.Observation{}
}

func (c *Controller) failLocked(kind Kind, err error) {
	c.kind = kind
	c.err = err
	c.state = Error
	c.since = time.Now()
	c.cfg.Logger.Error("session failed", "kind", kind, "error", err)
}

func (c *Controller) setStateLocked(s State) {
	if s != Error {
		c.kind = KindNone
		c.err = nil
	}
	if s == Idle {
		c.sessionID = ""
	}
	c.state = s
	c.since = time.Now()
}

// barrier waits for an in-progress publish to finish.
func (c *Controller) barrier() {
	c.publishMu.Lock()
	c.publishMu.Unlock() //nolint:staticcheck
}

// notify delivers the current status to state subscribers.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.subMu.RLock()
	subs := make([]func(Status), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()
	if len(subs) == 0 {
		return
	}

	st := c.Status()
	for _, fn := range subs {
		fn(st)
	}
}
