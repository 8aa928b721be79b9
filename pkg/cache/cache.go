// Package cache implements the two-tier response cache: a TTL-bounded
// in-process map in front of a durable collection of cache entries.
package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/metrics"
	"github.com/pario-ai/cachegate/pkg/models"
	"github.com/pario-ai/cachegate/pkg/store"
)

// DefaultTTL is the memory tier lifetime of an entry.
const DefaultTTL = 6 * time.Hour

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now for expiry and activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics mirrors cache counters into Prometheus.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the two-tier response cache. Persistent entries never expire.
type Cache struct {
	memory   *memoryTier
	entries  *store.Collection[models.CacheEntry]
	activity *ActivityLog
	stats    *Stats
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Cache whose persistent tier and activity log live in arena.
func New(arena *store.Arena, ttl time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: store.Open[models.CacheEntry](arena, "persistent-cache"),
		stats:   &Stats{},
		logger:  logger.With(zap.String("component", "cache")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.memory = newMemoryTier(ttl, c.now)
	c.activity = NewActivityLog(arena, c.now)
	return c
}

// Get looks r up in the memory tier, then the persistent tier. A
// persistent hit is copied into the memory tier.
func (c *Cache) Get(ctx context.Context, r Request) (string, bool, error) {
	key := r.Key()
	c.stats.requests.Add(1)
	c.metrics.RecordCacheRequest()

	if v, ok := c.memory.get(key); ok {
		c.hit(ctx, r, metrics.TierMemory)
		return v, true, nil
	}

	entry, ok, err := c.entries.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	if ok {
		c.memory.set(key, entry.Value)
		c.hit(ctx, r, metrics.TierPersistent)
		return entry.Value, true, nil
	}

	c.stats.misses.Add(1)
	c.metrics.RecordCacheMiss()
	c.logActivity(ctx, models.ActivityMiss, r)
	return "", false, nil
}

func (c *Cache) hit(ctx context.Context, r Request, tier string) {
	c.stats.hits.Add(1)
	c.metrics.RecordCacheHit(tier)
	c.logger.Debug("cache hit", zap.String("tier", tier), zap.String("service", string(r.Service)))
	c.logActivity(ctx, models.ActivityHit, r)
}

// Set writes value to the memory tier and then the persistent tier. If the
// persistent write fails the memory entry is dropped and the error returned.
func (c *Cache) Set(ctx context.Context, r Request, value string) error {
	key := r.Key()
	c.memory.set(key, value)

	if err := c.entries.Set(ctx, key, models.CacheEntry{ID: key, Value: value}); err != nil {
		c.memory.delete(key)
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// RecordUncached counts a request that bypassed the cache.
func (c *Cache) RecordUncached(ctx context.Context, service models.Service, prompt string) {
	c.stats.requests.Add(1)
	c.metrics.RecordCacheRequest()
	c.logActivity(ctx, models.ActivityNoCache, Request{Service: service, Prompt: prompt})
}

// logActivity records an event. Failures are logged, never returned.
func (c *Cache) logActivity(ctx context.Context, typ models.ActivityType, r Request) {
	if err := c.activity.Add(ctx, typ, r.Service, r.Prompt); err != nil {
		c.logger.Warn("record activity failed", zap.String("type", string(typ)), zap.Error(err))
	}
}

// Stats returns the counters and the live persistent entry count.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	n, err := c.entries.Len(ctx)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return c.stats.Snapshot(int64(n)), nil
}

// RecentActivity returns the activity log, newest first.
func (c *Cache) RecentActivity(ctx context.Context) ([]models.ActivityLogEntry, error) {
	return c.activity.Recent(ctx)
}

// Clear empties both tiers and the activity log. Counters are kept.
func (c *Cache) Clear(ctx context.Context) error {
	c.memory.clear()
	if err := c.entries.Clear(ctx); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	if err := c.activity.Clear(ctx); err != nil {
		return fmt.Errorf("cache clear activity: %w", err)
	}
	return nil
}
