// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for telescreen.
type Config struct {
	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`

	// Transport configures the gossip substrate.
	Transport TransportConfig `yaml:"transport"`

	// Session configures the call loop.
	Session SessionConfig `yaml:"session"`

	// Capture configures the camera layer.
	Capture CaptureConfig `yaml:"capture"`

	// Video configures frame encoding.
	Video VideoConfig `yaml:"video"`

	// Registry configures the saved-room store.
	Registry RegistryConfig `yaml:"registry"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// File redirects log output to a file. Empty logs to stderr.
	// A live session paints the terminal, so pointing logs at a file
	// keeps debug output readable.
	File string `yaml:"file"`
}

// TransportConfig configures the gossip substrate.
type TransportConfig struct {
	// Mode selects the data path: auto, tcp, webrtc.
	// Default: auto
	Mode string `yaml:"mode"`

	// ListenAddr is the TCP listen address for inbound links.
	// Default: ":0" (all interfaces, kernel-assigned port)
	ListenAddr string `yaml:"listen_addr"`

	// STUNServers are consulted during WebRTC upgrades. Empty means
	// host candidates only, which covers same-LAN sessions.
	STUNServers []string `yaml:"stun_servers"`
}

// SessionConfig configures the call loop.
type SessionConfig struct {
	// KeepaliveSeconds is the presence heartbeat cadence.
	// Default: 5
	KeepaliveSeconds int `yaml:"keepalive_seconds"`

	// TransmitWidth and TransmitHeight bound outgoing frames. Larger
	// captures are downscaled before broadcast.
	// Default: 320x240
	TransmitWidth  int `yaml:"transmit_width"`
	TransmitHeight int `yaml:"transmit_height"`
}

// CaptureConfig configures the camera layer.
type CaptureConfig struct {
	// DeviceIndices are the V4L2 device numbers the open ladder walks,
	// in order. Default: [0, 1]
	DeviceIndices []int `yaml:"device_indices"`

	// OpenAttempts is how many times each ladder candidate is tried.
	// Default: 5
	OpenAttempts int `yaml:"open_attempts"`

	// OpenBackoffMS is the pause between open attempts, in
	// milliseconds. Default: 300
	OpenBackoffMS int `yaml:"open_backoff_ms"`

	// IntervalMS is the capture tick cadence, in milliseconds.
	// Default: 33 (roughly 30 frames per second)
	IntervalMS int `yaml:"interval_ms"`
}

// VideoConfig configures frame encoding.
type VideoConfig struct {
	// Compression names the payload codec: none, lz4, zstd,
	// planar-lz4. Empty probes the first captured frame and picks the
	// smallest encoding.
	Compression string `yaml:"compression"`
}

// RegistryConfig configures the saved-room store.
type RegistryConfig struct {
	// Path overrides the registry file location.
	// Default: <UserConfigDir>/telescreen/rooms.yaml
	Path string `yaml:"path"`
}

// EnvVar is the environment variable naming the config file when no
// --config flag is given.
const EnvVar = "TELESCREEN_CONFIG"

// Default returns the stock configuration. Every field that the rest
// of the program reads has a usable value here; a missing config file
// is not an error.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode:       "auto",
			ListenAddr: ":0",
		},
		Session: SessionConfig{
			KeepaliveSeconds: 5,
			TransmitWidth:    320,
			TransmitHeight:   240,
		},
		Capture: CaptureConfig{
			DeviceIndices: []int{0, 1},
			OpenAttempts:  5,
			OpenBackoffMS: 300,
			IntervalMS:    33,
		},
	}
}

// DefaultPath returns the standard per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config directory: %w", err)
	}
	return filepath.Join(dir, "telescreen", "config.yaml"), nil
}

// Load resolves and loads the configuration. An explicit path (the
// --config flag) wins; otherwise TELESCREEN_CONFIG names the file;
// otherwise the per-user file at [DefaultPath] is loaded when it
// exists. With no file anywhere the compiled-in defaults are returned.
//
// A path given explicitly or through the environment must exist;
// only the per-user location may be silently absent.
func Load(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return LoadFile(explicitPath)
	}
	if envPath := os.Getenv(EnvVar); envPath != "" {
		return LoadFile(envPath)
	}
	userPath, err := DefaultPath()
	if err != nil {
		// No resolvable config directory; run on defaults.
		return Default(), nil
	}
	if _, err := os.Stat(userPath); err != nil {
		return Default(), nil
	}
	return LoadFile(userPath)
}

// LoadFile loads configuration from a specific file path, layered over
// the defaults. Unknown keys are errors.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// Expand ${HOME} and similar variables in path fields for
	// portability.
	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Log.File = expandVars(c.Log.File, vars)
	c.Registry.Path = expandVars(c.Registry.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	logLevels := []string{"debug", "info", "warn", "error"}
	if !contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	transportModes := []string{"auto", "tcp", "webrtc"}
	if !contains(transportModes, c.Transport.Mode) {
		errs = append(errs, fmt.Errorf("transport.mode must be one of: %v", transportModes))
	}

	if c.Session.KeepaliveSeconds <= 0 {
		errs = append(errs, fmt.Errorf("session.keepalive_seconds must be positive"))
	}
	if c.Session.TransmitWidth <= 0 || c.Session.TransmitHeight <= 0 {
		errs = append(errs, fmt.Errorf("session.transmit_width and transmit_height must be positive"))
	}

	if c.Capture.OpenAttempts <= 0 {
		errs = append(errs, fmt.Errorf("capture.open_attempts must be positive"))
	}
	if c.Capture.OpenBackoffMS < 0 {
		errs = append(errs, fmt.Errorf("capture.open_backoff_ms must not be negative"))
	}
	if c.Capture.IntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("capture.interval_ms must be positive"))
	}
	for _, index := range c.Capture.DeviceIndices {
		if index < 0 {
			errs = append(errs, fmt.Errorf("capture.device_indices must not be negative, got %d", index))
			break
		}
	}

	compressions := []string{"", "none", "lz4", "zstd", "planar-lz4"}
	if !contains(compressions, c.Video.Compression) {
		errs = append(errs, fmt.Errorf("video.compression must be one of: none, lz4, zstd, planar-lz4, or empty for automatic"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel maps Log.Level onto the slog scale. Unrecognized values
// fall back to Info; Validate reports them as errors.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
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

// KeepaliveInterval returns the heartbeat cadence as a duration.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Session.KeepaliveSeconds) * time.Second
}

// CaptureInterval returns the capture tick cadence as a duration.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.Capture.IntervalMS) * time.Millisecond
}

// OpenBackoff returns the pause between camera open attempts as a
// duration.
func (c *Config) OpenBackoff() time.Duration {
	return time.Duration(c.Capture.OpenBackoffMS) * time.Millisecond
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
