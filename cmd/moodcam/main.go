// moodcam - webcam emotion detection daemon with an HTTP control API
// and a live websocket feed for dashboards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/app"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log.InitWithOptions(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	a, err := app.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}
	if err := a.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
	}
}

// parseFlags loads the configuration and applies command line overrides.
func parseFlags() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	port := flag.String("port", cfg.Port, "HTTP port (MOODCAM_PORT)")
	device := flag.Int("device", cfg.CameraDevice, "Camera device index (MOODCAM_CAMERA_DEVICE)")
	preset := flag.String("preset", cfg.CameraPreset, "Camera preset: default, 720p, 1080p, environment, lowpower")
	interval := flag.Duration("interval", cfg.DetectionInterval, "Detection interval (MOODCAM_INTERVAL)")
	overlay := flag.Bool("overlay", cfg.Overlay, "Stream the detection overlay instead of raw frames")
	db := flag.String("db", cfg.DBPath, "SQLite history path (MOODCAM_DB)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg.Port, cfg.CameraDevice, cfg.CameraPreset = *port, *device, *preset
	cfg.DetectionInterval, cfg.Overlay, cfg.DBPath = *interval, *overlay, *db
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}
