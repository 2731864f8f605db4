package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

// Config holds all fleetdesk settings.
type Config struct {
	Addr        string `yaml:"addr" toml:"addr"`
	DB          string `yaml:"db" toml:"db"` // sqlite DSN for manifest versions
	ManifestDir string `yaml:"manifest_dir" toml:"manifest_dir"`
	OpenBrowser bool   `yaml:"open_browser" toml:"open_browser"`
	ShowQR      bool   `yaml:"show_qr" toml:"show_qr"`

	Diff DiffConfig `yaml:"diff" toml:"diff"`
	API  APIConfig  `yaml:"api" toml:"api"`
	Log  LogConfig  `yaml:"log" toml:"log"`
}

// DiffConfig bounds the diff engine.
type DiffConfig struct {
	MaxLines     int `yaml:"max_lines" toml:"max_lines"`
	CacheEntries int `yaml:"cache_entries" toml:"cache_entries"`
}

// APIConfig limits mutating requests.
type APIConfig struct {
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"` // requests per second, 0 disables
	Burst     int     `yaml:"burst" toml:"burst"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json or console
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:0",
		DB:          ":memory:",
		OpenBrowser: true,
		Diff: DiffConfig{
			MaxLines:     linediff.DefaultMaxLines,
			CacheEntries: 128,
		},
		API: APIConfig{
			RateLimit: 20,
			Burst:     40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads path on top of the defaults. The format follows the file
// extension (.yaml, .yml or .toml). An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decoding %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, nil
}

// ApplyEnv overrides settings from FLEETDESK_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("FLEETDESK_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("FLEETDESK_DB"); v != "" {
		c.DB = v
	}
	if v := getenv("FLEETDESK_MANIFEST_DIR"); v != "" {
		c.ManifestDir = v
	}
	if v := getenv("FLEETDESK_NO_OPEN"); v != "" {
		noOpen, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLEETDESK_NO_OPEN: %w", err)
		}
		c.OpenBrowser = !noOpen
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DB == "" {
		return fmt.Errorf("db is required")
	}
	if c.Diff.MaxLines < 0 {
		return fmt.Errorf("diff.max_lines must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.API.RateLimit > 0 && c.API.Burst < 1 {
		return fmt.Errorf("api.burst must be at least 1 when rate limiting")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Limits returns the diff size policy.
func (c Config) Limits() linediff.Limits {
	return linediff.Limits{MaxLines: c.Diff.MaxLines}
}
