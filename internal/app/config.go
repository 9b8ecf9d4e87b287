package app

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL           string `yaml:"server_url"`
	PollSeconds         int    `yaml:"poll_seconds"`
	IdleSeconds         int    `yaml:"idle_seconds"`
	ScrollDebounceMs    int    `yaml:"scroll_debounce_ms"`
	MouseQuietMs        int    `yaml:"mouse_quiet_ms"`
	MouseBurstThreshold int    `yaml:"mouse_burst_threshold"`
	AlertSeconds        int    `yaml:"alert_seconds"`
	Theme               string `yaml:"theme"`
	LogPath             string `yaml:"log_path"`
}

func DefaultConfig() Config {
	return Config{
		PollSeconds:         10,
		IdleSeconds:         5,
		ScrollDebounceMs:    100,
		MouseQuietMs:        500,
		MouseBurstThreshold: 5,
		AlertSeconds:        5,
		Theme:               "porcelain",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = 10
	}
	if cfg.PollSeconds > 300 {
		cfg.PollSeconds = 300
	}
	if cfg.IdleSeconds <= 0 {
		cfg.IdleSeconds = 5
	}
	if cfg.ScrollDebounceMs <= 0 {
		cfg.ScrollDebounceMs = 100
	}
	if cfg.MouseQuietMs <= 0 {
		cfg.MouseQuietMs = 500
	}
	if cfg.MouseBurstThreshold <= 0 {
		cfg.MouseBurstThreshold = 5
	}
	if cfg.AlertSeconds <= 0 {
		cfg.AlertSeconds = 5
	}
	if cfg.Theme == "" {
		cfg.Theme = "porcelain"
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "driftwatch", "config.yml")
}

// TrackerOptions converts config values to the tracker's timing knobs.
func (c Config) TrackerOptions() Options {
	return Options{
		ScrollDebounce:      time.Duration(c.ScrollDebounceMs) * time.Millisecond,
		MouseQuiet:          time.Duration(c.MouseQuietMs) * time.Millisecond,
		MouseBurstThreshold: c.MouseBurstThreshold,
		IdleTick:            time.Duration(c.IdleSeconds) * time.Second,
		IdleThreshold:       time.Duration(c.IdleSeconds) * time.Second,
		PollInterval:        time.Duration(c.PollSeconds) * time.Second,
		AlertDuration:       time.Duration(c.AlertSeconds) * time.Second,
	}
}
