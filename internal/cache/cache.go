package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type options struct {
	registry *Registry
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Cache.
type Option func(*options)

// WithRegistry registers the cache under its name when it is created.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger logs hits and misses at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Cache is a named, size-bounded memoization table.
// All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	name     string
	policy   Policy
	capacity int
	ttl      time.Duration
	lru      *simplelru.LRU[K, entry[V]]
	now      func() time.Time
	logger   zerolog.Logger
	hits     uint64
	misses   uint64
}

// NewTTL creates a cache whose entries expire ttl after they are stored.
// Capacity bounds the entry count; the least recently used entry is evicted first.
func NewTTL[K comparable, V any](name string, capacity int, ttl time.Duration, opts ...Option) (*Cache[K, V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache %s: ttl must be positive, got %v", name, ttl)
	}
	return newCache[K, V](name, PolicyTTL, capacity, ttl, opts)
}

// NewLRU creates a cache bounded only by capacity.
func NewLRU[K comparable, V any](name string, capacity int, opts ...Option) (*Cache[K, V], error) {
	return newCache[K, V](name, PolicyLRU, capacity, 0, opts)
}

func newCache[K comparable, V any](name string, policy Policy, capacity int, ttl time.Duration, opts []Option) (*Cache[K, V], error) {
	o := options{now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	l, err := simplelru.NewLRU[K, entry[V]](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}

	c := &Cache[K, V]{
		name:     name,
		policy:   policy,
		capacity: capacity,
		ttl:      ttl,
		lru:      l,
		now:      o.now,
		logger:   o.logger.With().Str("component", "cache").Str("cache", name).Logger(),
	}

	if o.registry != nil {
		if err := o.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name returns the name the cache was created with.
func (c *Cache[K, V]) Name() string {
	return c.name
}

// Get returns the cached value for key and records a hit or miss.
// An expired entry is removed and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if ok && c.policy == PolicyTTL && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Add stores value under key, evicting the least recently used entry when full.
func (c *Cache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: value}
	if c.policy == PolicyTTL {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.lru.Add(key, e)
}

// GetOrCompute returns the cached value for key, calling compute on a miss.
// Compute runs without the lock held; its errors are returned and never stored.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		c.logger.Debug().Interface("key", key).Msg("cache hit")
		return v, nil
	}
	c.logger.Debug().Interface("key", key).Msg("cache miss")

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Add(key, v)
	return v, nil
}

// Len returns the number of stored entries, including any not yet found expired.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Info returns the cache statistics.
func (c *Cache[K, V]) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		Name:     c.name,
		Policy:   c.policy,
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     c.lru.Len(),
		Capacity: c.capacity,
		TTL:      c.ttl,
	}
}

// Clear removes every entry and resets the hit and miss counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.hits = 0
	c.misses = 0
	c.logger.Debug().Msg("cache cleared")
}
