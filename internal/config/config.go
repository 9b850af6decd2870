// Package config provides configuration helpers for go-moodcam commands.
//
// Values are resolved in order: built-in defaults, an optional YAML file
// (MOODCAM_CONFIG), then environment variables (a .env file in the working
// directory is loaded first if present).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration.
const (
	DefaultPort              = "8090"
	DefaultModelLayout       = "onnx"
	DefaultCameraPreset      = "default"
	DefaultDetectionInterval = 200 * time.Millisecond
	DefaultUserID            = "local"
	DefaultLogLevel          = "info"
)

// Config holds all runtime settings for the moodcam binaries.
type Config struct {
	Port string `yaml:"port"`

	// Model assets. An empty ModelURL means the layout's default location.
	ModelURL    string `yaml:"model_url"`
	ModelDir    string `yaml:"model_dir"`
	ModelLayout string `yaml:"model_layout"` // "onnx" or "faceapi"

	// Camera
	CameraDevice int    `yaml:"camera_device"`
	CameraPreset string `yaml:"camera_preset"`

	// Detection
	DetectionInterval time.Duration `yaml:"detection_interval"`
	Overlay           bool          `yaml:"overlay"`

	// Persistence
	DBPath string `yaml:"db_path"`
	UserID string `yaml:"user_id"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:              DefaultPort,
		ModelDir:          defaultDataPath("models"),
		ModelLayout:       DefaultModelLayout,
		CameraDevice:      0,
		CameraPreset:      DefaultCameraPreset,
		DetectionInterval: DefaultDetectionInterval,
		Overlay:           true,
		DBPath:            defaultDataPath("moodcam.sqlite"),
		UserID:            DefaultUserID,
		LogLevel:          DefaultLogLevel,
	}
}

// Load resolves the configuration from file and environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("MOODCAM_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getenv("MOODCAM_PORT", c.Port)
	c.ModelURL = getenv("MOODCAM_MODEL_URL", c.ModelURL)
	c.ModelDir = getenv("MOODCAM_MODEL_DIR", c.ModelDir)
	c.ModelLayout = getenv("MOODCAM_MODEL_LAYOUT", c.ModelLayout)
	c.CameraPreset = getenv("MOODCAM_CAMERA_PRESET", c.CameraPreset)
	c.DBPath = getenv("MOODCAM_DB", c.DBPath)
	c.UserID = getenv("MOODCAM_USER", c.UserID)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getenv("LOG_FILE", c.LogFile)

	if v := os.Getenv("MOODCAM_CAMERA_DEVICE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOODCAM_CAMERA_DEVICE: %w", err)
		}
		c.CameraDevice = n
	}
	if v := os.Getenv("MOODCAM_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MOODCAM_INTERVAL: %w", err)
		}
		c.DetectionInterval = d
	}
	if v := os.Getenv("MOODCAM_OVERLAY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MOODCAM_OVERLAY: %w", err)
		}
		c.Overlay = b
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	if c.ModelLayout != "onnx" && c.ModelLayout != "faceapi" {
		return fmt.Errorf("config: model_layout must be onnx or faceapi, got %q", c.ModelLayout)
	}
	if c.DetectionInterval <= 0 {
		return fmt.Errorf("config: detection_interval must be positive")
	}
	if c.CameraDevice < 0 {
		return fmt.Errorf("config: camera_device must not be negative")
	}
	return nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// defaultDataPath returns a path under ~/.moodcam, or the working directory
// if the home directory is unknown.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return home + string(os.PathSeparator) + ".moodcam" + string(os.PathSeparator) + name
}
