package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/libreshield/shieldd/internal/shield/repos/rules"
)

// matchCache is an LRU-backed implementation of rules.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type matchCache struct {
	lru       *lru.Cache[string, rules.Match]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses.
func New(size int) (rules.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var mc matchCache
	// NewWithEvict observes evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ rules.Match) {
		atomic.AddUint64(&mc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	mc.lru = cache
	return &mc, nil
}

// Get looks up a match by host, counting hits and misses.
func (c *matchCache) Get(host string) (rules.Match, bool) {
	if val, ok := c.lru.Get(host); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return rules.Match{}, false
}

// Put stores a match by host.
func (c *matchCache) Put(host string, m rules.Match) {
	c.lru.Add(host, m)
}

// Len returns the number of entries in the cache.
func (c *matchCache) Len() int { return c.lru.Len() }

// Purge clears all entries.
func (c *matchCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *matchCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

func (disabledCache) Get(string) (rules.Match, bool)  { return rules.Match{}, false }
func (disabledCache) Put(string, rules.Match)         {}
func (disabledCache) Len() int                        { return 0 }
func (disabledCache) Purge()                          {}
func (disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ rules.DecisionCache = (*matchCache)(nil)
var _ rules.DecisionCache = disabledCache{}
