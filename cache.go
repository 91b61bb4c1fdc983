package main

import (
	"container/list"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultCacheCapacity is used when the configuration does not set one
const DefaultCacheCapacity = 64

// ScenarioKey identifies one cached computation: the process that ran it and
// the canonical lever set.
type ScenarioKey struct {
	Process uuid.UUID
	Levers  string
}

// NewScenarioKey builds a key from a canonical lever list
func NewScenarioKey(process uuid.UUID, canonical []string) ScenarioKey {
	return ScenarioKey{Process: process, Levers: strings.Join(canonical, ",")}
}

// CacheStats reports cache activity since creation
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

type cacheEntry struct {
	key    ScenarioKey
	bundle *ResultBundle
}

// ScenarioCache is a bounded LRU of result bundles. Bundles are copied on
// the way in and on the way out, so no caller shares memory with the cache.
type ScenarioCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[ScenarioKey]*list.Element
	stats    CacheStats
}

// NewScenarioCache creates a cache holding at most capacity bundles
func NewScenarioCache(capacity int) *ScenarioCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &ScenarioCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[ScenarioKey]*list.Element),
	}
}

// NewSharedScenarioCache creates a cache meant to be passed to several
// engines. Keys carry the process id, so engines never see each other's entries.
func NewSharedScenarioCache(capacity int) *ScenarioCache {
	return NewScenarioCache(capacity)
}

// Get returns a copy of the cached bundle
func (c *ScenarioCache) Get(key ScenarioKey) (*ResultBundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).bundle.Clone(), true
}

// Put stores a copy of bundle, evicting the least recently used entry when full
func (c *ScenarioCache) Put(key ScenarioKey, bundle *ResultBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).bundle = bundle.Clone()
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, bundle: bundle.Clone()})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
		c.stats.Evictions++
		scenarioCacheEvictions.Inc()
	}
}

// Contains reports whether key is cached without touching recency or stats
func (c *ScenarioCache) Contains(key ScenarioKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Len returns the number of cached bundles
func (c *ScenarioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry computed by one process and returns how many were removed
func (c *ScenarioCache) Purge(process uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if key.Process == process {
			c.order.Remove(elem)
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the counters
func (c *ScenarioCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = c.order.Len()
	stats.Capacity = c.capacity
	return stats
}
