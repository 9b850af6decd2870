// moodcam-fetch - download the detection models into the local cache so the
// daemon can start offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	layout := flag.String("layout", cfg.ModelLayout, "Model layout: onnx or faceapi")
	dir := flag.String("dir", cfg.ModelDir, "Cache directory (MOODCAM_MODEL_DIR)")
	baseURL := flag.String("url", cfg.ModelURL, "Download prefix (default: per layout)")
	refresh := flag.Bool("refresh", false, "Download again even when cached")
	parallel := flag.Int("parallel", 2, "Concurrent downloads")
	flag.Parse()

	log.InitWithOptions(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger := log.Component("fetch")

	l := models.Layout(*layout)
	if *baseURL == "" {
		*baseURL = models.BaseURL(l)
	}
	src := models.NewHTTPSource(*baseURL, *dir)
	src.Refresh = *refresh

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*parallel, 1))
	for _, spec := range models.SpecsFor(l) {
		g.Go(func() error {
			asset, err := src.Load(gctx, spec)
			if err != nil {
				return fmt.Errorf("%s: %w", spec.Name, err)
			}
			logger.Info("model ready", "model", spec.Name, "files", len(asset.Files), "dir", asset.Dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("fetch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("all models cached", "layout", l, "url", *baseURL, "dir", *dir, "took", time.Since(start).Round(time.Millisecond))
}
