// moodcam-tui - terminal front-end: live emotion detection, manual logging,
// history and trends.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/internal/tui"
	"github.com/teslashibe/go-moodcam/pkg/app"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	days := flag.Int("days", 7, "Days covered by the trends view")
	device := flag.Int("device", cfg.CameraDevice, "Camera device index")
	flag.Parse()
	cfg.CameraDevice = *device

	// The terminal belongs to the UI; logs go to LOG_FILE only.
	log.InitWithOptions(log.Options{Level: cfg.LogLevel, File: cfg.LogFile, Quiet: true})

	a, err := app.New(cfg, app.WithoutWeb())
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if err := a.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	events, unsubscribe := tui.Subscribe(a.Controller())
	defer unsubscribe()

	m := tui.New(tui.Options{
		Controller: a.Controller(),
		History:    a.History(),
		Vocabulary: a.Vocabulary(),
		UserID:     cfg.UserID,
		Events:     events,
		StatsDays:  *days,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}
}
