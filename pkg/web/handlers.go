package web

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/hub"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultStatsDays = 7
	maxStatsDays     = 365
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// handleStatus returns the controller snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleStart begins a session in the background; progress arrives as
// status events.
func (s *Server) handleStart(c *fiber.Ctx) error {
	st := s.ctrl.Status()
	if st.State == session.Error {
		return fiber.NewError(fiber.StatusConflict, session.ErrNeedsReset.Error())
	}

	go func() {
		err := s.ctrl.Start(s.ctx)
		if err != nil && !errors.Is(err, session.ErrCancelled) {
			s.logger.Warn("session start failed", "error", err)
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(st)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.ctrl.Stop()
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.ctrl.Reset()
	return c.JSON(s.ctrl.Status())
}

// SaveRequest is the body of POST /api/session/save.
type SaveRequest struct {
	Notes string `json:"notes"`
}

// handleSave stores the current observation. A persistence failure leaves
// the session running so the client can retry.
func (s *Server) handleSave(c *fiber.Ctx) error {
	var req SaveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
	}

	entry, err := s.ctrl.Save(c.UserContext(), strings.TrimSpace(req.Notes))
	if err != nil {
		var pe *store.PersistenceError
		switch {
		case errors.Is(err, session.ErrNoObservation):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.As(err, &pe):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":     err.Error(),
				"retryable": true,
			})
		default:
			return err
		}
	}

	_ = s.events.BroadcastEvent(hub.EventEntry, entry)
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.camera.Constraints())
}

// handleUpdateCamera applies a partial update; changes take effect on the
// next session start.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.camera.Update(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.camera.Constraints())
}

func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// LogRequest is the body of POST /api/emotions.
type LogRequest struct {
	Emotion    string     `json:"emotion"`
	Confidence *float64   `json:"confidence,omitempty"`
	Notes      string     `json:"notes"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// handleLogEmotion records a manually chosen emotion.
func (s *Server) handleLogEmotion(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history unavailable")
	}

	var req LogRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	emo, err := s.vocab.Get(strings.TrimSpace(req.Emotion))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unknown emotion: "+req.Emotion)
	}

	confidence := store.DefaultManualConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return fiber.NewError(fiber.StatusBadRequest, "confidence must be within [0, 1]")
	}

	now := time.Now()
	ts := now
	if req.Timestamp != nil {
		if req.Timestamp.After(now) {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp is in the future")
		}
		ts = *req.Timestamp
	}

	entry := store.Entry{
		ID:         uuid.NewString(),
		UserID:     s.cfg.UserID,
		Emotion:    emo.Name,
		Confidence: confidence,
		Notes:      strings.TrimSpace(req.Notes),
		Source:     store.SourceManual,
		Timestamp:  ts,
	}
	if err := s.history.Save(c.UserContext(), entry); err != nil {
		if errors.Is(err, store.ErrInvalidEntry) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     err.Error(),
			"retryable": true,
		})
	}

	_ = s.events.BroadcastEvent(hub.EventEntry, entry)
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// handleListEmotions returns the newest entries first.
func (s *Server) handleListEmotions(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history unavailable")
	}
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit out of range")
	}

	entries, err := s.history.List(c.UserContext(), s.cfg.UserID, limit)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history unavailable")
	}
	days := c.QueryInt("days", defaultStatsDays)
	if days < 1 || days > maxStatsDays {
		return fiber.NewError(fiber.StatusBadRequest, "days out of range")
	}

	stats, err := store.StatsFor(c.UserContext(), s.history, s.cfg.UserID, days, time.Now())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (s *Server) handleVocabulary(c *fiber.Ctx) error {
	return c.JSON(s.vocab.All())
}

func (s *Server) handleModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"layout":   s.cfg.Models.Layout,
		"base_url": s.cfg.Models.BaseURL,
		"specs":    s.cfg.Models.Specs,
		"states":   s.ctrl.Status().Models,
	})
}

// handleEventsWS streams status, observation and entry events. The current
// status is sent first.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	var initial []hub.Message
	if msg, err := hub.NewEventMessage(hub.EventStatus, s.ctrl.Status()); err == nil {
		initial = append(initial, msg)
	}
	hub.NewClient(s.events, conn, initial...).Run()
}

// handleVideoWS streams JPEG frames, with the overlay when enabled.
func (s *Server) handleVideoWS(conn *websocket.Conn) {
	hub.NewClient(s.video, conn).Run()
}
