package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if AGENDA_CONFIG is set
//  3. env (prefix AGENDA_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("AGENDA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: AGENDA_ADDR, AGENDA_QUEUE_SIZE, ...
	// Map env keys like AGENDA_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("AGENDA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "agenda_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Basic validation
	switch {
	case cfg.Addr == "":
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.FeedQueueSize <= 0:
		return nil, fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case cfg.WorkerCount <= 0:
		return nil, fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case cfg.ColorCacheSize <= 0:
		return nil, fmt.Errorf("%w: color_cache_size must be positive", ErrInvalidConfig)
	case cfg.ColorCacheTTLSeconds <= 0:
		return nil, fmt.Errorf("%w: color_cache_ttl_seconds must be positive", ErrInvalidConfig)
	case cfg.MaxAgendaLimit <= 0:
		return nil, fmt.Errorf("%w: max_agenda_limit must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}
