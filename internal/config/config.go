// Package config loads the portal configuration from config.yaml, with
// environment overrides and a file watcher for live reload.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OverlayConfig holds the startup placement of the on-device overlay.
type OverlayConfig struct {
	Offset  int  `yaml:"offset"`
	Visible bool `yaml:"visible"`
}

// Config is the full portal configuration.
type Config struct {
	HomeDir string `yaml:"-"`

	// HTTPPort serves the synchronous command surface.
	HTTPPort int `yaml:"http_port"`

	// SocketPort serves the event broadcast socket. It can be rebound at
	// runtime via the socket_port operation.
	SocketPort int `yaml:"socket_port"`

	BindAddr string `yaml:"bind_addr"`

	// AuthToken protects the HTTP surface. Empty disables auth.
	AuthToken string `yaml:"auth_token"`

	LogLevel string `yaml:"log_level"`

	ScreenshotTimeoutSeconds int `yaml:"screenshot_timeout_seconds"`

	// HeartbeatIntervalSeconds controls the broadcast heartbeat. 0
	// disables it.
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`

	Overlay OverlayConfig `yaml:"overlay"`
}

// ScreenshotTimeout returns the capture bound as a duration.
func (c Config) ScreenshotTimeout() time.Duration {
	return time.Duration(c.ScreenshotTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat period, zero when disabled.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// Fingerprint returns a stable hash of the active config, used to detect
// effective changes across reloads.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "http=%d|socket=%d|bind=%s|auth=%t|log=%s|shot=%d|beat=%d|overlay=%d:%t",
		c.HTTPPort, c.SocketPort, c.BindAddr, c.AuthToken != "", c.LogLevel,
		c.ScreenshotTimeoutSeconds, c.HeartbeatIntervalSeconds,
		c.Overlay.Offset, c.Overlay.Visible)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		HTTPPort:                 8080,
		SocketPort:               8081,
		BindAddr:                 "0.0.0.0",
		LogLevel:                 "info",
		ScreenshotTimeoutSeconds: 5,
		HeartbeatIntervalSeconds: 30,
		Overlay:                  OverlayConfig{Offset: 0, Visible: true},
	}
}

// HomeDir returns the portal home directory, honoring the
// DROIDPORTAL_HOME override.
func HomeDir() string {
	if override := os.Getenv("DROIDPORTAL_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".droidportal")
}

// ConfigPath returns the path to config.yaml within the given home
// directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the portal home, applying defaults, env
// overrides and validation. A missing file is not an error.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom loads the configuration from an explicit home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create portal home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the servers cannot run with.
func (c Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d outside range 1-65535", c.HTTPPort)
	}
	if c.SocketPort < 1024 || c.SocketPort > 65535 {
		return fmt.Errorf("socket_port %d outside range 1024-65535", c.SocketPort)
	}
	if c.HTTPPort == c.SocketPort {
		return fmt.Errorf("http_port and socket_port both set to %d", c.HTTPPort)
	}
	return nil
}

func normalize(cfg *Config) {
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.SocketPort == 0 {
		cfg.SocketPort = 8081
	}
	if strings.TrimSpace(cfg.BindAddr) == "" {
		cfg.BindAddr = "0.0.0.0"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ScreenshotTimeoutSeconds <= 0 {
		cfg.ScreenshotTimeoutSeconds = 5
	}
	if cfg.HeartbeatIntervalSeconds < 0 {
		cfg.HeartbeatIntervalSeconds = 0
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("DROIDPORTAL_HTTP_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HTTPPort = v
		}
	}
	if raw := os.Getenv("DROIDPORTAL_SOCKET_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.SocketPort = v
		}
	}
	if raw := os.Getenv("DROIDPORTAL_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("DROIDPORTAL_AUTH_TOKEN"); raw != "" {
		cfg.AuthToken = raw
	}
	if raw := os.Getenv("DROIDPORTAL_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("DROIDPORTAL_SCREENSHOT_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.ScreenshotTimeoutSeconds = v
		}
	}
	if raw := os.Getenv("DROIDPORTAL_HEARTBEAT_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.HeartbeatIntervalSeconds = v
		}
	}
}

// SetSocketPort persists a rebound socket port back to config.yaml,
// preserving other settings.
func SetSocketPort(homeDir string, port int) error {
	path := ConfigPath(homeDir)
	raw := make(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	raw["socket_port"] = port
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
