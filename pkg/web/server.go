// Package web serves the moodcam control API and live dashboard feed.
package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/hub"
	"github.com/teslashibe/go-moodcam/pkg/models"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/store"
)

// Controller is the session controller driven by the API.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Reset()
	Save(ctx context.Context, notes string) (store.Entry, error)
	Status() session.Status
}

// ModelInfo describes the model assets in use.
type ModelInfo struct {
	Layout  models.Layout `json:"layout"`
	BaseURL string        `json:"base_url"`
	Specs   []models.Spec `json:"specs"`
}

// Config configures a Server.
type Config struct {
	Addr      string
	UserID    string
	StaticDir string
	Models    ModelInfo
	Logger    *slog.Logger
}

// Server is the HTTP and websocket front of a controller.
type Server struct {
	app     *fiber.App
	cfg     Config
	ctrl    Controller
	history store.History
	vocab   *emotions.Registry
	camera  *camera.Manager
	logger  *slog.Logger

	// Base context for session starts; cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	events *hub.Hub
	video  *hub.Hub
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config, ctrl Controller, history store.History, vocab *emotions.Registry, cam *camera.Manager) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Component("web")
	}
	if cfg.UserID == "" {
		cfg.UserID = "local"
	}
	if vocab == nil {
		vocab = emotions.DefaultRegistry()
	}
	if cam == nil {
		cam = camera.NewManager(camera.DefaultConstraints())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		history: history,
		vocab:   vocab,
		camera:  cam,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		events:  hub.New("events"),
		video:   hub.New("video"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "moodcam",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${method} ${path} ${status} ${latency}\n",
		Next:   func(c *fiber.Ctx) bool { return websocket.IsWebSocketUpgrade(c) },
	}))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)

	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)
	api.Post("/session/reset", s.handleReset)
	api.Post("/session/save", s.handleSave)

	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleListPresets)

	api.Get("/emotions", s.handleListEmotions)
	api.Post("/emotions", s.handleLogEmotion)
	api.Get("/emotions/stats", s.handleStats)
	api.Get("/vocabulary", s.handleVocabulary)
	api.Get("/models", s.handleModels)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/video", websocket.New(s.handleVideoWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until Shutdown.
func (s *Server) Start() error {
	go s.events.Run(s.ctx)
	go s.video.Run(s.ctx)

	s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
	err := s.app.Listen(s.cfg.Addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown stops the hubs and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

// PublishStatus pushes a status change to event subscribers.
func (s *Server) PublishStatus(st session.Status) {
	if err := s.events.BroadcastEvent(hub.EventStatus, st); err != nil {
		s.logger.Warn("encode status", "error", err)
	}
}

// PublishObservation pushes an observation to event subscribers.
func (s *Server) PublishObservation(o emotions.Observation) {
	if err := s.events.BroadcastEvent(hub.EventObservation, o); err != nil {
		s.logger.Warn("encode observation", "error", err)
	}
}

// PublishFrame pushes a JPEG frame to video subscribers.
func (s *Server) PublishFrame(jpeg []byte) {
	if s.video.ClientCount() == 0 {
		return
	}
	s.video.BroadcastBinary(jpeg)
}

// handleError renders every error as {"error": msg}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
