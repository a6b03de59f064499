package color

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/okian/agenda/pkg/metrics"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 30 * time.Minute
)

// Cache remembers color assignments per canonical event id so repeated
// resolution passes keep events visually stable. Entries age out after a
// TTL and the least recently used entry is evicted once the cache is full.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	size int
	ttl  time.Duration
}

// WithCacheSize bounds the number of remembered assignments.
func WithCacheSize(n int) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithCacheTTL sets how long an assignment stays fresh without being
// reassigned.
func WithCacheTTL(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// NewCache creates a bounded color cache.
func NewCache(opts ...CacheOption) *Cache {
	cfg := cacheConfig{size: defaultCacheSize, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{lru: expirable.NewLRU[string, string](cfg.size, nil, cfg.ttl)}
}

// Get looks up the remembered color for a canonical event id.
func (c *Cache) Get(id string) (string, bool) {
	color, ok := c.lru.Get(id)
	if ok {
		metrics.RecordColorCacheHit()
	} else {
		metrics.RecordColorCacheMiss()
	}
	return color, ok
}

// Put remembers a color assignment, refreshing its TTL.
func (c *Cache) Put(id, color string) {
	c.lru.Add(id, color)
	metrics.UpdateColorCacheSize(c.lru.Len())
}

// Len reports the current number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
	metrics.UpdateColorCacheSize(0)
}
