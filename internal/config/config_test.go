package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.DetectionInterval != 200*time.Millisecond {
		t.Errorf("DetectionInterval = %v, want 200ms", cfg.DetectionInterval)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MOODCAM_PORT", "9999")
	t.Setenv("MOODCAM_INTERVAL", "150ms")
	t.Setenv("MOODCAM_CAMERA_DEVICE", "2")
	t.Setenv("MOODCAM_OVERLAY", "false")

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.DetectionInterval != 150*time.Millisecond {
		t.Errorf("DetectionInterval = %v, want 150ms", cfg.DetectionInterval)
	}
	if cfg.CameraDevice != 2 {
		t.Errorf("CameraDevice = %d, want 2", cfg.CameraDevice)
	}
	if cfg.Overlay {
		t.Error("Overlay should be disabled")
	}
}

func TestApplyEnv_BadInterval(t *testing.T) {
	t.Setenv("MOODCAM_INTERVAL", "soon")
	cfg := Default()
	if err := cfg.applyEnv(); err == nil {
		t.Fatal("expected error for unparsable interval")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moodcam.yaml")
	body := "port: \"7000\"\nmodel_layout: faceapi\ncamera_preset: 720p\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != "7000" || cfg.ModelLayout != "faceapi" || cfg.CameraPreset != "720p" {
		t.Errorf("unexpected config after LoadFile: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"bad layout", func(c *Config) { c.ModelLayout = "tflite" }},
		{"zero interval", func(c *Config) { c.DetectionInterval = 0 }},
		{"negative device", func(c *Config) { c.CameraDevice = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
