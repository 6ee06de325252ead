// Package config loads crawler configuration from YAML files and
// OCTOPUS_* environment variables and turns it into engine options.
// The library itself is configured programmatically; this package exists
// for the CLI and for applications that prefer declarative setup.
package config

import (
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for an octopus crawler.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Store   StoreConfig   `mapstructure:"store"   yaml:"store"`
	Sites   []SiteConfig  `mapstructure:"sites"   yaml:"sites"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig tunes the crawl engine.
type EngineConfig struct {
	Threads     int `mapstructure:"threads"      yaml:"threads"`
	QueueFactor int `mapstructure:"queue_factor" yaml:"queue_factor"`
	Retries     int `mapstructure:"retries"      yaml:"retries"`
	MaxDepth    int `mapstructure:"max_depth"    yaml:"max_depth"`
}

// StoreConfig selects and configures the request store backend.
// Path and Table apply to sqlite; Addr, Prefix, DB and Password to redis.
type StoreConfig struct {
	Type     string `mapstructure:"type"     yaml:"type"`
	Path     string `mapstructure:"path"     yaml:"path"`
	Table    string `mapstructure:"table"    yaml:"table"`
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Prefix   string `mapstructure:"prefix"   yaml:"prefix"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Password string `mapstructure:"password" yaml:"password"`
}

// SiteConfig declares per-host crawl policy. Interval and Capacity
// describe the rate limiter; an Interval of zero means unlimited.
type SiteConfig struct {
	Host     string            `mapstructure:"host"     yaml:"host"`
	Interval time.Duration     `mapstructure:"interval" yaml:"interval"`
	Capacity int               `mapstructure:"capacity" yaml:"capacity"`
	Headers  map[string]string `mapstructure:"headers"  yaml:"headers"`
	Proxy    string            `mapstructure:"proxy"    yaml:"proxy"`
	Encoding string            `mapstructure:"encoding" yaml:"encoding"`
	Timeout  time.Duration     `mapstructure:"timeout"  yaml:"timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Threads:     runtime.NumCPU(),
			QueueFactor: 2,
			Retries:     1,
			MaxDepth:    0,
		},
		Store: StoreConfig{
			Type: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// NewLogger builds a slog.Logger from the logging section. Unknown
// levels fall back to info.
func NewLogger(lc LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
