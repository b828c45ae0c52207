// Package cache stores API responses in a durable key-value store with a
// fixed time-to-live.
//
// Entries are JSON objects holding the response and the time it was stored,
// as an RFC 3339 timestamp with nanosecond precision. A key is the namespace, the endpoint name, and an
// xxh3 digest of the canonical payload encoding. Keys carry no time or random
// component, so the same request always maps to the same entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/core/store"
	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

const (
	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = 24 * time.Hour

	// DefaultNamespace prefixes every key owned by the cache.
	DefaultNamespace = "api_cache_"
)

type entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(c *Cache) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// WithLogger sets the logger for purge and clear events.
func WithLogger(logger observability.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source used by the janitor.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a TTL cache over a store.KV.
type Cache struct {
	kv        store.KV
	ttl       time.Duration
	namespace string
	logger    observability.Logger
	now       func() time.Time

	// mu serializes read-check-remove sequences against writes.
	mu sync.Mutex
}

// New creates a cache backed by kv.
func New(kv store.KV, opts ...Option) *Cache {
	c := &Cache{
		kv:        kv,
		ttl:       DefaultTTL,
		namespace: DefaultNamespace,
		logger:    observability.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Namespace returns the key prefix owned by the cache.
func (c *Cache) Namespace() string { return c.namespace }

// Key returns the cache key for endpoint and payload under this cache's
// namespace.
func (c *Cache) Key(endpoint string, payload map[string]string) string {
	return Key(c.namespace, endpoint, payload)
}

// Get returns the cached value for key. Entries at or past their TTL are
// removed and reported as absent. Entries that cannot be decoded are removed
// and reported as absent.
func (c *Cache) Get(ctx context.Context, key string, now time.Time) (json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, state, err := c.lookup(ctx, key, now)
	if err != nil {
		return nil, false, err
	}
	metrics.RecordCacheLookup(state)

	switch state {
	case metrics.CacheHit:
		c.logger.Debug("Cache hit", zap.String("key", key))
		return value, true, nil
	case metrics.CacheMiss:
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false, nil
	default:
		if err := c.kv.Remove(ctx, key); err != nil {
			return nil, false, fmt.Errorf("purge %s cache entry: %w", state, err)
		}
		return nil, false, nil
	}
}

// lookup classifies the entry under key. Callers must hold c.mu.
func (c *Cache) lookup(ctx context.Context, key string, now time.Time) (json.RawMessage, string, error) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("read cache entry: %w", err)
	}
	if !ok {
		return nil, metrics.CacheMiss, nil
	}

	e, err := decodeEntry(raw)
	if err != nil {
		c.logger.Warn("Discarding corrupted cache entry",
			zap.Error(apperrors.NewCacheCorruptionError(key, err)),
		)
		return nil, metrics.CacheCorrupt, nil
	}

	storedAt := e.StoredAt
	if now.Sub(storedAt) >= c.ttl {
		c.logger.Debug("Cache entry expired",
			zap.String("key", key),
			zap.Time("stored_at", storedAt),
		)
		return nil, metrics.CacheExpired, nil
	}
	return e.Data, metrics.CacheHit, nil
}

// Put stores value under key stamped with now, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, value json.RawMessage, now time.Time) error {
	if !json.Valid(value) {
		return errors.New("cache value must be valid JSON")
	}

	raw, err := json.Marshal(entry{Data: value, StoredAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Remove(ctx, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// ClearAll removes every key under the cache namespace and returns how many
// were removed. Keys outside the namespace are left alone.
func (c *Cache) ClearAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.kv.ListKeysWithPrefix(ctx, c.namespace)
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if err := c.kv.Remove(ctx, key); err != nil {
			return removed, fmt.Errorf("clear cache entry: %w", err)
		}
		removed++
	}

	c.logger.Info(fmt.Sprintf("Cleared %d cached API responses", removed), zap.Int("count", removed))
	return removed, nil
}

// PurgeExpired removes entries that are expired or corrupted as of now and
// returns how many were removed. Running it twice in a row removes nothing the
// second time.
func (c *Cache) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.kv.ListKeysWithPrefix(ctx, c.namespace)
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}

	removed := 0
	for _, key := range keys {
		_, state, err := c.lookup(ctx, key, now)
		if err != nil {
			return removed, err
		}
		if state != metrics.CacheExpired && state != metrics.CacheCorrupt {
			continue
		}
		if err := c.kv.Remove(ctx, key); err != nil {
			return removed, fmt.Errorf("purge cache entry: %w", err)
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info("Purged expired cache entries", zap.Int("count", removed))
	}
	return removed, nil
}

// Stats summarizes the entries under the namespace.
type Stats struct {
	Entries int           `json:"entries"`
	Live    int           `json:"live"`
	Expired int           `json:"expired"`
	Corrupt int           `json:"corrupt"`
	TTL     time.Duration `json:"ttl"`
}

// Stats counts entries by state as of now without modifying anything.
func (c *Cache) Stats(ctx context.Context, now time.Time) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{TTL: c.ttl}
	keys, err := c.kv.ListKeysWithPrefix(ctx, c.namespace)
	if err != nil {
		return stats, fmt.Errorf("list cache entries: %w", err)
	}

	for _, key := range keys {
		_, state, err := c.lookup(ctx, key, now)
		if err != nil {
			return stats, err
		}
		switch state {
		case metrics.CacheHit:
			stats.Live++
		case metrics.CacheExpired:
			stats.Expired++
		case metrics.CacheCorrupt:
			stats.Corrupt++
		default:
			continue
		}
		stats.Entries++
	}
	return stats, nil
}

// RunJanitor calls PurgeExpired every interval until ctx is done.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.PurgeExpired(ctx, c.now())
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("Cache janitor sweep failed", zap.Error(err))
			}
			metrics.RecordJanitorSweep(removed, err == nil)
		}
	}
}

func decodeEntry(raw string) (entry, error) {
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return entry{}, err
	}
	if e.StoredAt.IsZero() {
		return entry{}, errors.New("missing stored_at")
	}
	if len(e.Data) == 0 {
		return entry{}, errors.New("missing data")
	}
	return e, nil
}
