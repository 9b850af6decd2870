// Package log provides structured logging for go-moodcam.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// File, when set, mirrors log output into a rotating file.
	File string

	// MaxSizeMB is the size at which the log file is rotated (default 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 3).
	MaxBackups int

	// Quiet suppresses stdout output, e.g. when a TUI owns the terminal.
	Quiet bool
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	InitWithOptions(Options{Level: level})
}

// InitWithOptions initializes the global logger. Only the first call wins.
func InitWithOptions(opts Options) {
	once.Do(func() {
		handlerOpts := &slog.HandlerOptions{
			Level: ParseLevel(opts.Level),
		}

		var out io.Writer = os.Stdout
		if opts.Quiet {
			out = io.Discard
		}
		if opts.File != "" {
			maxSize := opts.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 10
			}
			backups := opts.MaxBackups
			if backups <= 0 {
				backups = 3
			}
			file := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    maxSize,
				MaxBackups: backups,
				Compress:   true,
			}
			if opts.Quiet {
				out = file
			} else {
				out = io.MultiWriter(os.Stdout, file)
			}
		}

		// Use JSON in production, text in development
		if os.Getenv("GO_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(out, handlerOpts))
		} else {
			logger = slog.New(slog.NewTextHandler(out, handlerOpts))
		}

		slog.SetDefault(logger)
	})
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
