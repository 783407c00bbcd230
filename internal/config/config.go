// Package config provides configuration types, defaults and validation for
// usibridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/usibridge/internal/clock"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/tracing"
)

// Config holds all configuration options for usibridge.
type Config struct {
	EnginesFile string         `mapstructure:"engines_file"`
	Launch      LaunchConfig   `mapstructure:"launch"`
	Session     SessionConfig  `mapstructure:"session"`
	Search      SearchConfig   `mapstructure:"search"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Tracing     tracing.Config `mapstructure:"tracing"`
	Log         LogConfig      `mapstructure:"log"`
}

// LaunchConfig controls engine process startup and shutdown.
type LaunchConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"` // Handshake timeout (default: 10)
	QuitGraceMs    int      `mapstructure:"quit_grace_ms"`   // Wait after quit before kill (default: 5000)
	StderrLines    int      `mapstructure:"stderr_lines"`    // Stderr lines kept for launch errors (default: 50)
	WorkDir        string   `mapstructure:"work_dir"`        // Empty runs engines in their own directory
	Env            []string `mapstructure:"env"`             // Extra KEY=VALUE pairs for engine processes
}

// Timeout returns the handshake timeout.
func (l LaunchConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// QuitGrace returns the quit grace period.
func (l LaunchConfig) QuitGrace() time.Duration {
	return time.Duration(l.QuitGraceMs) * time.Millisecond
}

// SessionConfig controls session event delivery.
type SessionConfig struct {
	InfoIntervalMs int `mapstructure:"info_interval_ms"` // Minimum spacing of info events (default: 500)
	EventBuffer    int `mapstructure:"event_buffer"`
}

// InfoInterval returns the info throttle interval.
func (s SessionConfig) InfoInterval() time.Duration {
	return time.Duration(s.InfoIntervalMs) * time.Millisecond
}

// SearchConfig holds the defaults of the search and mate commands.
type SearchConfig struct {
	Clock         clock.TimeLimit `mapstructure:"clock"`
	MateTimeoutMs int             `mapstructure:"mate_timeout_ms"` // 0 searches without limit
}

// CacheConfig controls the engine info cache.
type CacheConfig struct {
	EngineInfoTTL time.Duration `mapstructure:"engine_info_ttl"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// DefaultDir returns ~/.config/usibridge, or "" if the home dir is
// unavailable.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "usibridge")
}

// DefaultEnginesFilePath returns the default engine definitions file.
func DefaultEnginesFilePath() string {
	dir := DefaultDir()
	if dir == "" {
		return "engines.yaml"
	}
	return filepath.Join(dir, "engines.yaml")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		EnginesFile: DefaultEnginesFilePath(),
		Launch: LaunchConfig{
			TimeoutSeconds: 10,
			QuitGraceMs:    5000,
			StderrLines:    50,
		},
		Session: SessionConfig{
			InfoIntervalMs: 500,
			EventBuffer:    64,
		},
		Search: SearchConfig{
			Clock: clock.TimeLimit{
				TimeSeconds:    0,
				ByoyomiSeconds: 10,
			},
		},
		Cache: CacheConfig{
			EngineInfoTTL: 10 * time.Minute,
		},
		Tracing: tracing.DefaultConfig(),
		Log: LogConfig{
			Path:  "debug.log",
			Level: "debug",
		},
	}
}

// SetDefaults registers Defaults() with v so that keys missing from the
// config file fall back to them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("engines_file", d.EnginesFile)
	v.SetDefault("launch.timeout_seconds", d.Launch.TimeoutSeconds)
	v.SetDefault("launch.quit_grace_ms", d.Launch.QuitGraceMs)
	v.SetDefault("launch.stderr_lines", d.Launch.StderrLines)
	v.SetDefault("launch.work_dir", d.Launch.WorkDir)
	v.SetDefault("session.info_interval_ms", d.Session.InfoIntervalMs)
	v.SetDefault("session.event_buffer", d.Session.EventBuffer)
	v.SetDefault("search.clock.time_seconds", d.Search.Clock.TimeSeconds)
	v.SetDefault("search.clock.byoyomi_seconds", d.Search.Clock.ByoyomiSeconds)
	v.SetDefault("search.clock.increment_seconds", d.Search.Clock.IncrementSeconds)
	v.SetDefault("search.clock.max_move_ms", d.Search.Clock.MaxMoveMillis)
	v.SetDefault("search.mate_timeout_ms", d.Search.MateTimeoutMs)
	v.SetDefault("cache.engine_info_ttl", d.Cache.EngineInfoTTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = DefaultTracesFilePath()
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if cfg.EnginesFile == "" {
		return fmt.Errorf("engines_file must be set")
	}
	if err := ValidateLaunch(cfg.Launch); err != nil {
		return err
	}
	if err := ValidateSession(cfg.Session); err != nil {
		return err
	}
	if err := ValidateSearch(cfg.Search); err != nil {
		return err
	}
	if cfg.Cache.EngineInfoTTL < 0 {
		return fmt.Errorf("cache.engine_info_ttl must not be negative, got %v", cfg.Cache.EngineInfoTTL)
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateLaunch checks launch timing.
func ValidateLaunch(l LaunchConfig) error {
	if l.TimeoutSeconds <= 0 {
		return fmt.Errorf("launch.timeout_seconds must be positive, got %d", l.TimeoutSeconds)
	}
	if l.QuitGraceMs < 0 {
		return fmt.Errorf("launch.quit_grace_ms must not be negative, got %d", l.QuitGraceMs)
	}
	if l.StderrLines <= 0 {
		return fmt.Errorf("launch.stderr_lines must be positive, got %d", l.StderrLines)
	}
	for _, kv := range l.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("launch.env entries must be KEY=VALUE, got %q", kv)
		}
	}
	return nil
}

// ValidateSession checks session settings.
func ValidateSession(s SessionConfig) error {
	if s.InfoIntervalMs < 0 {
		return fmt.Errorf("session.info_interval_ms must not be negative, got %d", s.InfoIntervalMs)
	}
	if s.EventBuffer < 0 {
		return fmt.Errorf("session.event_buffer must not be negative, got %d", s.EventBuffer)
	}
	return nil
}

// ValidateSearch checks the default time control.
func ValidateSearch(s SearchConfig) error {
	c := s.Clock
	switch {
	case c.TimeSeconds < 0, c.ByoyomiSeconds < 0, c.IncrementSeconds < 0, c.MaxMoveMillis < 0:
		return fmt.Errorf("search.clock values must not be negative")
	case c.TimeSeconds == 0 && c.ByoyomiSeconds == 0 && c.IncrementSeconds == 0:
		return fmt.Errorf("search.clock needs time_seconds, byoyomi_seconds or increment_seconds")
	case s.MateTimeoutMs < 0:
		return fmt.Errorf("search.mate_timeout_ms must not be negative, got %d", s.MateTimeoutMs)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing tracing.Config) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# usibridge configuration

# Engine definitions file (default: ~/.config/usibridge/engines.yaml)
# engines_file: /path/to/engines.yaml

# Engine process startup and shutdown
launch:
  timeout_seconds: 10   # Time allowed for the usi/usiok handshake
  quit_grace_ms: 5000   # Wait after "quit" before the engine is killed
  stderr_lines: 50      # Engine stderr lines kept for launch errors
  # work_dir: /path/to/engines  # Default: the directory of each engine
  # env:                        # Extra variables for engine processes
  #   - OMP_NUM_THREADS=4

# Session event delivery
session:
  info_interval_ms: 500 # Minimum spacing of search info updates
  event_buffer: 64

# Defaults for the search and mate commands
search:
  clock:
    time_seconds: 0
    byoyomi_seconds: 10
    increment_seconds: 0  # Ignored when byoyomi_seconds is set
    max_move_ms: 0        # Cap per move, 0 disables
  mate_timeout_ms: 0      # 0 searches without limit

# Engine option queries are cached per executable
cache:
  engine_info_ttl: 10m

# Debug log, written when --debug or USIBRIDGE_DEBUG is set
log:
  path: debug.log
  level: debug

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/usibridge/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
