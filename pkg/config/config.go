// Package config provides configuration management for drowsiguard.
// It loads configuration from YAML files with sensible defaults and
// lets a handful of settings be overridden from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Event logging policies for the session analytics engine.
const (
	EventsPerFrame   = "per_frame"
	EventsTransition = "transition"
)

// Config holds all drowsiguard configuration.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Detection   DetectionConfig   `yaml:"detection"`
	Distraction DistractionConfig `yaml:"distraction"`
	Identity    IdentityConfig    `yaml:"identity"`
	Session     SessionConfig     `yaml:"session"`
	Storage     StorageConfig     `yaml:"storage"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CameraConfig describes the frames the landmark provider works on.
// Width and height also define the pinhole camera used for pose solving.
type CameraConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// DetectionConfig holds the drowsiness, yawn and blink thresholds.
type DetectionConfig struct {
	EARThreshold  float64       `yaml:"ear_threshold"`
	EARFrames     int           `yaml:"ear_frames"`
	MARThreshold  float64       `yaml:"mar_threshold"`
	MARFrames     int           `yaml:"mar_frames"`
	BlinkDebounce time.Duration `yaml:"blink_debounce"`
	BlinkWindow   time.Duration `yaml:"blink_window"`
}

// DistractionConfig holds the head pose limits in degrees.
type DistractionConfig struct {
	MaxPitch float64 `yaml:"max_pitch"`
	MaxYaw   float64 `yaml:"max_yaw"`
}

// IdentityConfig holds identity verification settings.
type IdentityConfig struct {
	MSEThreshold float64 `yaml:"mse_threshold"`
}

// SessionConfig holds session analytics settings.
type SessionConfig struct {
	EventPolicy string `yaml:"event_policy"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// ArchiveConfig holds the sqlite report archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig holds the status server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/drowsiguard")
	return &Config{
		Camera: CameraConfig{
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Detection: DetectionConfig{
			EARThreshold:  0.20,
			EARFrames:     50,
			MARThreshold:  0.5,
			MARFrames:     50,
			BlinkDebounce: 300 * time.Millisecond,
			BlinkWindow:   60 * time.Second,
		},
		Distraction: DistractionConfig{
			MaxPitch: 30,
			MaxYaw:   50,
		},
		Identity: IdentityConfig{
			MSEThreshold: 0.02,
		},
		Session: SessionConfig{
			EventPolicy: EventsPerFrame,
		},
		Storage: StorageConfig{
			DataDir:           dataDir,
			EncryptionEnabled: false,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "sessions.db"),
		},
		Server: ServerConfig{
			Enabled: false,
			Listen:  ":5000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   filepath.Join(dataDir, "drowsiguard.log"),
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file.
// On error the defaults are returned alongside the error.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations and then
// applies environment overrides.
func LoadDefault() (*Config, error) {
	cfg, err := loadFromSearchPath()
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func loadFromSearchPath() (*Config, error) {
	if _, err := os.Stat("/etc/drowsiguard/drowsiguard.yaml"); err == nil {
		return Load("/etc/drowsiguard/drowsiguard.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/drowsiguard/drowsiguard.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// ApplyEnv loads an optional .env file from the working directory and applies
// DROWSIGUARD_* overrides. Variables already set in the process win over .env.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("DROWSIGUARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DROWSIGUARD_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
		c.Archive.Path = filepath.Join(v, "sessions.db")
	}
	if v := os.Getenv("DROWSIGUARD_LISTEN"); v != "" {
		c.Server.Listen = v
		c.Server.Enabled = true
	}
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera FPS: %d", c.Camera.FPS)
	}

	d := c.Detection
	if d.EARThreshold <= 0 {
		return fmt.Errorf("ear_threshold must be positive, got %f", d.EARThreshold)
	}
	if d.MARThreshold <= 0 {
		return fmt.Errorf("mar_threshold must be positive, got %f", d.MARThreshold)
	}
	if d.EARFrames <= 0 || d.MARFrames <= 0 {
		return fmt.Errorf("ear_frames and mar_frames must be positive, got %d and %d", d.EARFrames, d.MARFrames)
	}
	if d.BlinkDebounce < 0 {
		return fmt.Errorf("blink_debounce must not be negative, got %s", d.BlinkDebounce)
	}
	if d.BlinkWindow <= 0 {
		return fmt.Errorf("blink_window must be positive, got %s", d.BlinkWindow)
	}

	if c.Distraction.MaxPitch <= 0 || c.Distraction.MaxPitch > 90 {
		return fmt.Errorf("max_pitch must be in (0, 90], got %f", c.Distraction.MaxPitch)
	}
	if c.Distraction.MaxYaw <= 0 || c.Distraction.MaxYaw > 90 {
		return fmt.Errorf("max_yaw must be in (0, 90], got %f", c.Distraction.MaxYaw)
	}

	if c.Identity.MSEThreshold <= 0 {
		return fmt.Errorf("mse_threshold must be positive, got %f", c.Identity.MSEThreshold)
	}

	if c.Session.EventPolicy != EventsPerFrame && c.Session.EventPolicy != EventsTransition {
		return fmt.Errorf("invalid event_policy: %s (must be %s or %s)", c.Session.EventPolicy, EventsPerFrame, EventsTransition)
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive is enabled but archive.path is empty")
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server is enabled but server.listen is empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Archive.Path = ExpandPath(c.Archive.Path)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := os.MkdirAll(c.ReportDir(), 0700); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	if c.Archive.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.Archive.Path), 0700); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// ReportDir returns the directory session reports are written to.
func (c *Config) ReportDir() string {
	return filepath.Join(c.Storage.DataDir, "reports")
}
