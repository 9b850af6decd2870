package inference

import (
	"log/slog"

	"github.com/teslashibe/go-moodcam/internal/log"
)

// Config holds engine configuration.
type Config struct {
	// Face detection
	ScoreThreshold float64 // Minimum face score
	NMSThreshold   float64 // Non-maximum suppression IoU
	TopK           int     // Candidates kept before NMS

	// Face crop size fed to the expression and recognition nets
	FaceSize int

	// Skip the recognition net (no descriptor in results)
	SkipDescriptor bool

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring engines.
type Option func(*Config)

// WithScoreThreshold sets the minimum face detection score.
func WithScoreThreshold(v float64) Option {
	return func(c *Config) { c.ScoreThreshold = v }
}

// WithNMSThreshold sets the non-maximum suppression threshold.
func WithNMSThreshold(v float64) Option {
	return func(c *Config) { c.NMSThreshold = v }
}

// WithFaceSize sets the face crop size.
func WithFaceSize(n int) Option {
	return func(c *Config) { c.FaceSize = n }
}

// WithoutDescriptor disables the recognition net.
func WithoutDescriptor() Option {
	return func(c *Config) { c.SkipDescriptor = true }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the defaults used by the OpenCV engine.
func DefaultConfig() *Config {
	return &Config{
		ScoreThreshold: 0.5,
		NMSThreshold:   0.3,
		TopK:           5000,
		FaceSize:       112,
		Logger:         log.Component("inference"),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
