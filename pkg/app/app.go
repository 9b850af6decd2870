// Package app assembles a moodcam process: model registry, camera, inference
// engine, history store, session controller and the optional web server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/models"
	"github.com/teslashibe/go-moodcam/pkg/overlay"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/store"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

const shutdownTimeout = 5 * time.Second

// ErrUnsupportedLayout is returned when no inference engine can read the
// configured model layout.
var ErrUnsupportedLayout = errors.New("app: the opencv engine requires the onnx model layout")

// Option overrides a component, mostly for tests and demos.
type Option func(*App)

// WithPlatform sets the camera platform (default: gocv on the configured device).
func WithPlatform(p camera.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithEngine sets the inference engine (default: OpenCV).
func WithEngine(e inference.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithSource sets the model asset source (default: HTTP with a disk cache).
func WithSource(s models.Source) Option {
	return func(a *App) { a.source = s }
}

// WithHistory sets the history store (default: SQLite at the configured path).
func WithHistory(h store.History) Option {
	return func(a *App) { a.history = h }
}

// WithoutWeb disables the HTTP server.
func WithoutWeb() Option {
	return func(a *App) { a.noWeb = true }
}

// App owns every component of a moodcam process.
type App struct {
	config config.Config
	logger *slog.Logger
	noWeb  bool

	platform camera.Platform
	source   models.Source
	engine   inference.Engine
	history  store.History

	registry      *models.Registry
	capture       *camera.Session
	cameraManager *camera.Manager
	vocab         *emotions.Registry
	ctrl          *session.Controller
	webServer     *web.Server

	unsubscribe []func()
}

// New validates cfg and creates an uninitialised App.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config: cfg,
		logger: log.Component("app"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds every component. Call it after New and before Run.
func (a *App) Init() error {
	layout := models.Layout(a.config.ModelLayout)
	if a.engine == nil && layout != models.LayoutONNX {
		return fmt.Errorf("%w (got %q)", ErrUnsupportedLayout, layout)
	}

	preset := camera.GetPreset(a.config.CameraPreset)
	if preset == nil {
		return fmt.Errorf("app: unknown camera preset %q (have %v)", a.config.CameraPreset, camera.PresetNames())
	}
	a.cameraManager = camera.NewManager(*preset)
	a.vocab = emotions.DefaultRegistry()

	baseURL := a.config.ModelURL
	if baseURL == "" {
		baseURL = models.BaseURL(layout)
	}
	if a.source == nil {
		a.source = models.NewHTTPSource(baseURL, a.config.ModelDir)
	}
	specs := models.SpecsFor(layout)
	registry, err := models.NewRegistry(a.source, models.WithSpecs(specs))
	if err != nil {
		return fmt.Errorf("model registry: %w", err)
	}
	a.registry = registry

	if a.platform == nil {
		a.platform = camera.NewGocvPlatform(a.config.CameraDevice)
	}
	a.capture = camera.NewSession(a.platform)

	if a.engine == nil {
		a.engine = inference.NewOpenCV()
	}

	if a.history == nil {
		db, err := store.OpenSQLite(a.config.DBPath)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		a.history = db
	}

	a.ctrl = session.New(a.registry, a.capture, a.engine, a.history,
		session.WithUserID(a.config.UserID),
		session.WithInterval(a.config.DetectionInterval),
		session.WithConstraints(a.cameraManager.Constraints),
		session.WithTargets(a.renderTargets()),
	)

	if !a.noWeb {
		a.webServer = web.NewServer(web.Config{
			Addr:   ":" + a.config.Port,
			UserID: a.config.UserID,
			Models: web.ModelInfo{Layout: layout, BaseURL: baseURL, Specs: specs},
		}, a.ctrl, a.history, a.vocab, a.cameraManager)
		a.unsubscribe = append(a.unsubscribe,
			a.ctrl.OnState(a.webServer.PublishStatus),
			a.ctrl.OnObservation(a.webServer.PublishObservation),
		)
	}

	a.logger.Info("initialised",
		"layout", layout,
		"models", baseURL,
		"camera_device", a.config.CameraDevice,
		"preset", a.config.CameraPreset,
		"interval", a.config.DetectionInterval,
		"web", a.webServer != nil)
	return nil
}

// renderTargets streams frames to the dashboard: raw frames, or the
// detection overlay when enabled. The sinks read a.webServer when called,
// which is after Init.
func (a *App) renderTargets() session.RenderTargets {
	if a.noWeb {
		return session.RenderTargets{}
	}
	if !a.config.Overlay {
		return session.RenderTargets{
			Video: func(f camera.Frame) { a.webServer.PublishFrame(f.Data) },
		}
	}
	return session.RenderTargets{
		Overlay: func(f camera.Frame, res *inference.Result) {
			img, err := overlay.Draw(f, res)
			if err != nil {
				a.logger.Debug("overlay draw failed", "error", err)
				img = f.Data
			}
			a.webServer.PublishFrame(img)
		},
	}
}

// Run serves the web API, if enabled, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.ctrl == nil {
		return errors.New("app: Init must be called before Run")
	}
	if a.webServer != nil {
		a.webServer.StartAsync()
	}
	<-ctx.Done()
	return nil
}

// Shutdown stops the session and releases every component.
func (a *App) Shutdown() {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.webServer.Shutdown(ctx); err != nil {
			a.logger.Warn("web shutdown", "error", err)
		}
		cancel()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("close history", "error", err)
		}
	}
	a.logger.Info("shut down")
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.ctrl }

// History returns the history store.
func (a *App) History() store.History { return a.history }

// Vocabulary returns the emotion vocabulary.
func (a *App) Vocabulary() *emotions.Registry { return a.vocab }

// Camera returns the camera constraints manager.
func (a *App) Camera() *camera.Manager { return a.cameraManager }

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config { return a.config }
