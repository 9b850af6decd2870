package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/models"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/store"
)

// writeModels creates placeholder files for every ONNX model.
func writeModels(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, spec := range models.ONNXSpecs() {
		for _, f := range spec.Files {
			p := filepath.Join(dir, filepath.FromSlash(f))
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(p, []byte("onnx"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return dir
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DetectionInterval = 2 * time.Millisecond
	cfg.UserID = "tester"
	return cfg
}

func TestApp_EndToEnd(t *testing.T) {
	mem := store.NewMemory()
	platform := camera.NewMockPlatform([]byte("jpeg"))
	a, err := New(testConfig(),
		WithoutWeb(),
		WithPlatform(platform),
		WithEngine(inference.WithScores(emotions.Scores{"happy": 0.8, "neutral": 0.2})),
		WithSource(&models.DirSource{Dir: writeModels(t)}),
		WithHistory(mem),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer a.Shutdown()

	ctrl := a.Controller()
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := ctrl.Observation(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no observation")
		}
		time.Sleep(time.Millisecond)
	}

	entry, err := ctrl.Save(context.Background(), "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if entry.Emotion != "Happy" || entry.UserID != "tester" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if ctrl.State() != session.Idle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
	if got := mem.Entries(); len(got) != 1 {
		t.Errorf("stored %d entries, want 1", len(got))
	}
	if platform.Opens() != 1 || !platform.Sources()[0].Track().Stopped() {
		t.Error("camera not released after save")
	}
}

func TestApp_UsesCameraPreset(t *testing.T) {
	cfg := testConfig()
	cfg.CameraPreset = camera.PresetLowPower

	platform := camera.NewMockPlatform([]byte("jpeg"))
	a, _ := New(cfg,
		WithoutWeb(),
		WithPlatform(platform),
		WithEngine(inference.NewMock()),
		WithSource(&models.DirSource{Dir: writeModels(t)}),
		WithHistory(store.NewMemory()),
	)
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown()

	if err := a.Controller().Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := platform.Sources()[0]
	frame, err := got.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if frame.Width != 320 || frame.Height != 240 {
		t.Errorf("frame %dx%d, want lowpower 320x240", frame.Width, frame.Height)
	}
}

func TestApp_MissingModels(t *testing.T) {
	a, _ := New(testConfig(),
		WithoutWeb(),
		WithPlatform(camera.NewMockPlatform(nil)),
		WithEngine(inference.NewMock()),
		WithSource(&models.DirSource{Dir: t.TempDir()}),
		WithHistory(store.NewMemory()),
	)
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown()

	err := a.Controller().Start(context.Background())
	if !errors.Is(err, models.ErrAssetsMissing) {
		t.Errorf("expected ErrAssetsMissing, got %v", err)
	}
	if st := a.Controller().Status(); st.ErrorKind != session.KindModelLoad {
		t.Errorf("error kind = %v", st.ErrorKind)
	}
}

func TestApp_InitErrors(t *testing.T) {
	cfg := testConfig()
	cfg.ModelLayout = "faceapi"
	a, _ := New(cfg, WithoutWeb(), WithHistory(store.NewMemory()))
	if err := a.Init(); !errors.Is(err, ErrUnsupportedLayout) {
		t.Errorf("expected ErrUnsupportedLayout, got %v", err)
	}

	cfg = testConfig()
	cfg.CameraPreset = "4k"
	a, _ = New(cfg, WithoutWeb(), WithHistory(store.NewMemory()))
	if err := a.Init(); err == nil {
		t.Error("expected unknown preset error")
	}

	cfg = testConfig()
	cfg.DetectionInterval = 0
	if _, err := New(cfg); err == nil {
		t.Error("expected invalid config error")
	}
}

func TestRun_RequiresInit(t *testing.T) {
	a, _ := New(testConfig(), WithoutWeb())
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run before Init should fail")
	}
}
