package cache

import (
	"time"

	"linkboard/config"
	"linkboard/model"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
)

// approximate in-memory size of one link entry
const linkEntryCost = 1024

// LinkCache is a Ristretto-backed cache of links keyed by slug. It sits on
// the redirect hot path so a popular link does not hit Redis on every click.
type LinkCache struct {
	client *ristretto.Cache
	ttl    time.Duration
}

// New creates a new cache instance with the given configuration
func New(cfg config.CacheConfig) (*LinkCache, error) {
	// Calculate max cost in bytes (convert MB to bytes)
	maxCost := int64(cfg.MaxSizeMB) * 1024 * 1024

	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.CounterSize), // Number of keys to track frequency for admission
		MaxCost:     maxCost,                // Maximum cache size in bytes
		BufferItems: 64,                     // Number of keys per Get buffer
		Metrics:     true,                   // Needed for the metrics endpoint
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("max_size_mb", cfg.MaxSizeMB).
		Int("ttl_seconds", cfg.TTLSeconds).
		Int("counter_size", cfg.CounterSize).
		Msg("Link cache initialized")

	return &LinkCache{
		client: client,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
	}, nil
}

// Get retrieves a link by slug.
// Returns (link, true) if found, (zero, false) if not found.
func (c *LinkCache) Get(slug string) (model.Link, bool) {
	if c == nil || c.client == nil {
		return model.Link{}, false
	}
	value, found := c.client.Get(slug)
	if !found {
		return model.Link{}, false
	}
	link, ok := value.(model.Link)
	return link, ok
}

// Set stores a link under its slug with the configured TTL
func (c *LinkCache) Set(slug string, link model.Link) bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.client.SetWithTTL(slug, link, linkEntryCost, c.ttl)
}

// Delete removes a slug from the cache. Must be called whenever a link is
// updated or deleted so the redirect path cannot serve a stale destination.
func (c *LinkCache) Delete(slug string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(slug)
}

// Close cleanly shuts down the cache
func (c *LinkCache) Close() {
	if c != nil && c.client != nil {
		c.client.Close()
		log.Info().Msg("Link cache closed")
	}
}

// MetricsSnapshot is a point-in-time view of cache performance
type MetricsSnapshot struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	KeysAdded   uint64  `json:"keys_added"`
	KeysEvicted uint64  `json:"keys_evicted"`
	HitRatio    float64 `json:"hit_ratio"`
	TTLSeconds  int     `json:"ttl_seconds"`
}

// GetMetricsSnapshot returns current cache metrics as a snapshot
func (c *LinkCache) GetMetricsSnapshot() MetricsSnapshot {
	if c == nil || c.client == nil || c.client.Metrics == nil {
		return MetricsSnapshot{}
	}

	m := c.client.Metrics
	hits := m.Hits()
	misses := m.Misses()
	total := hits + misses

	hitRatio := 0.0
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return MetricsSnapshot{
		Hits:        hits,
		Misses:      misses,
		KeysAdded:   m.KeysAdded(),
		KeysEvicted: m.KeysEvicted(),
		HitRatio:    hitRatio,
		TTLSeconds:  int(c.ttl.Seconds()),
	}
}
