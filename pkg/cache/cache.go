package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tomaasz/update-ultra/pkg/ports"
)

// ComputeFunc produces the value for a cache key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

type entry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) live(now time.Time) bool {
	return now.Sub(e.storedAt) <= e.ttl
}

// Cache is a TTL-bounded key/value store shared by concurrently running
// steps. All mutation goes through GetOrCompute, ForceRefresh and the
// invalidation methods; concurrent computes for the same key are collapsed
// into a single flight. Instances are independent: multiple concurrent runs
// can each carry their own Cache without interfering.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	group   singleflight.Group
	backend ports.CacheBackend
	metrics ports.MetricsCollector
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend enables persistent backing. Stored entries survive process
// restarts; entries past TTL are treated as absent on load.
func WithBackend(b ports.CacheBackend) Option {
	return func(c *Cache) { c.backend = b }
}

// WithMetrics records hit/miss counts on lookups.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value for key if a live entry exists;
// otherwise it invokes compute, stores the result with a fresh timestamp and
// returns it. The boolean reports whether the value was served from cache.
// Concurrent calls for the same key share a single in-flight computation;
// calls for different keys proceed independently.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, bool, error) {
	if value, ok := c.lookup(ctx, key, ttl); ok {
		c.recordLookup(true)
		return value, true, nil
	}

	type flight struct {
		value     []byte
		fromCache bool
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have stored the value while this flight
		// was queued.
		if value, ok := c.lookup(ctx, key, ttl); ok {
			return flight{value: value, fromCache: true}, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, value, ttl)
		return flight{value: value}, nil
	})
	if err != nil {
		c.recordLookup(false)
		return nil, false, err
	}

	f := v.(flight)
	c.recordLookup(f.fromCache)
	return f.value, f.fromCache, nil
}

// ForceRefresh always invokes compute and overwrites any existing entry for
// key, bypassing validity checking.
func (c *Cache) ForceRefresh(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, value, ttl)
	return value, nil
}

// Invalidate removes a single entry from the in-memory store.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll clears the in-memory store and, when persistent backing is
// enabled, the backing store.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns a live value from memory, falling back to the persistent
// backend. Expired in-memory entries are evicted; expired backend entries are
// left in place (lazy expiry).
func (c *Cache) lookup(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.live(now) {
			c.mu.Unlock()
			return e.value, true
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.backend == nil {
		return nil, false
	}

	value, storedAt, ok, err := c.backend.Load(ctx, key)
	if err != nil {
		c.logger.Warn("cache backend load failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok || now.Sub(storedAt) > ttl {
		return nil, false
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: storedAt, ttl: ttl}
	c.mu.Unlock()
	return value, true
}

func (c *Cache) store(ctx context.Context, key string, value []byte, ttl time.Duration) {
	now := c.now()

	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: now, ttl: ttl}
	c.mu.Unlock()

	if c.backend != nil {
		// Persistence is best-effort: a backing failure never fails the step.
		if err := c.backend.Store(ctx, key, value, now); err != nil {
			c.logger.Warn("cache backend store failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *Cache) recordLookup(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(hit)
	}
}
