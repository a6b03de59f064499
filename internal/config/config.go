// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// FeedQueueSize bounds the in-memory feed batch queue.
	FeedQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of refresh workers.
	WorkerCount int `koanf:"worker_count"`

	// ColorCacheSize caps the color assignment cache entry count.
	ColorCacheSize int `koanf:"color_cache_size"`

	// ColorCacheTTLSeconds sets the time-to-live for cached color assignments.
	ColorCacheTTLSeconds int `koanf:"color_cache_ttl_seconds"`

	// DefaultTimezone is the viewer zone used when a request supplies none.
	// Falls back to UTC when the zone cannot be loaded.
	DefaultTimezone string `koanf:"default_timezone"`

	// MaxAgendaLimit caps GET /agenda?limit.
	MaxAgendaLimit int `koanf:"max_agenda_limit"`

	// SnapshotIntervalMS controls how often the agenda store republishes
	// its read snapshot.
	SnapshotIntervalMS int `koanf:"snapshot_interval_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		FeedQueueSize:        10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		ColorCacheSize:       4_096,
		ColorCacheTTLSeconds: 1_800,
		DefaultTimezone:      "UTC",
		MaxAgendaLimit:       200,
		SnapshotIntervalMS:   1_000,
	}
	return c
}
