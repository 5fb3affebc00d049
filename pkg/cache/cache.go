package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultCapacity is the total number of entries the cache holds.
	DefaultCapacity = 1024

	// DefaultShards keeps every operation behind a single lock.
	DefaultShards = 1
)

var (
	// ErrInvalidCapacity indicates a capacity below one entry.
	ErrInvalidCapacity = errors.New("cache capacity must be positive")

	// ErrInvalidShards indicates a shard count below one or above capacity.
	ErrInvalidShards = errors.New("cache shards must be between 1 and capacity")
)

// Config holds cache sizing.
type Config struct {
	// Capacity is the maximum number of live entries across all shards.
	Capacity int

	// Shards is the number of independently locked partitions.
	Shards int
}

// DefaultConfig returns a 1024 entry, single-lock cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		Shards:   DefaultShards,
	}
}

// Cache is a bounded LRU map from request path to Payload, safe for
// concurrent use.
type Cache struct {
	shards   []*shard
	capacity int
	size     atomic.Int64
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, Payload]
}

// New creates a cache with the given configuration.
func New(cfg Config) (*Cache, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCapacity, cfg.Capacity)
	}
	if cfg.Shards <= 0 || cfg.Shards > cfg.Capacity {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidShards, cfg.Shards)
	}

	c := &Cache{
		shards:   make([]*shard, cfg.Shards),
		capacity: cfg.Capacity,
	}

	for i, size := range shardCapacities(cfg.Capacity, cfg.Shards) {
		lru, err := simplelru.NewLRU[string, Payload](size, c.onEvict)
		if err != nil {
			return nil, fmt.Errorf("create shard %d: %w", i, err)
		}
		c.shards[i] = &shard{lru: lru}
	}

	return c, nil
}

// onEvict runs under the owning shard's lock.
func (c *Cache) onEvict(_ string, _ Payload) {
	c.size.Add(-1)
	CacheEntries.Dec()
	CacheEvictions.Inc()
}

func (c *Cache) shardFor(key string) *shard {
	return c.shards[shardIndex(key, len(c.shards))]
}

// Get returns the payload cached for key and marks key most recently used.
func (c *Cache) Get(key string) (Payload, bool) {
	s := c.shardFor(key)

	s.mu.Lock()
	p, ok := s.lru.Get(key)
	s.mu.Unlock()

	if ok {
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
	return p, ok
}

// Peek returns the payload cached for key without touching recency or the
// hit and miss counters.
func (c *Cache) Peek(key string) (Payload, bool) {
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Peek(key)
}

// Put inserts or replaces the entry for key and marks it most recently used.
// If the owning shard is over capacity afterwards, its least recently used
// entry is evicted. It reports whether an eviction happened.
func (c *Cache) Put(key string, p Payload) bool {
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lru.Contains(key) {
		c.size.Add(1)
		CacheEntries.Inc()
	}
	return s.lru.Add(key, p)
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key string) bool {
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Contains(key)
}

// Keys returns the cached keys of every shard, each shard ordered from least
// to most recently used.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, c.Len())
	for _, s := range c.shards {
		s.mu.Lock()
		keys = append(keys, s.lru.Keys()...)
		s.mu.Unlock()
	}
	return keys
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// Capacity returns the configured total capacity.
func (c *Cache) Capacity() int {
	return c.capacity
}
