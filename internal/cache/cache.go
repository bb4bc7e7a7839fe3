// Package cache provides a keyed read cache with a freshness window. Values
// are serialized so callers never share memory with the cached copy.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"pickings/internal/logging"
	"pickings/internal/metrics"
)

// DefaultTTL is the freshness window when none is configured.
const DefaultTTL = 60 * time.Second

// Backend stores opaque payloads by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Freshness describes a lookup result.
type Freshness struct {
	Hit bool
	Age time.Duration
}

type entry[T any] struct {
	StoredAt time.Time `json:"stored_at"`
	Value    T         `json:"value"`
}

// Options tunes a Cache.
type Options struct {
	Name    string
	TTL     time.Duration
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

// Cache serves values stored within the last TTL. Backend failures are
// logged and read as misses.
type Cache[T any] struct {
	backend Backend
	name    string
	ttl     time.Duration
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zerolog.Logger
}

// New returns a cache over backend.
func New[T any](backend Backend, opts Options) *Cache[T] {
	c := &Cache[T]{
		backend: backend,
		name:    opts.Name,
		ttl:     opts.TTL,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = logging.WithModule("cache")
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value for key when it is younger than the TTL.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, Freshness) {
	var zero T
	payload, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache read failed")
	}
	if err != nil || !ok {
		c.metrics.CacheLookup(c.name, false)
		return zero, Freshness{}
	}

	var e entry[T]
	if err := json.Unmarshal(payload, &e); err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache entry corrupt")
		c.metrics.CacheLookup(c.name, false)
		return zero, Freshness{}
	}

	age := c.clock.Now().Sub(e.StoredAt)
	if age >= c.ttl {
		c.metrics.CacheLookup(c.name, false)
		return zero, Freshness{Age: age}
	}
	c.metrics.CacheLookup(c.name, true)
	return e.Value, Freshness{Hit: true, Age: age}
}

// Set stores value under key, stamped with the current time.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	payload, err := json.Marshal(entry[T]{StoredAt: c.clock.Now(), Value: value})
	if err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.backend.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate drops key so the next Get misses.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("cache invalidate failed")
	}
}
