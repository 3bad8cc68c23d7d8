package permissions

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCacheTTL is how long a decision stays fresh
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheSize bounds the number of cached decisions
	DefaultCacheSize = 10000
)

// cacheEntry is immutable once stored; updates replace the whole entry.
type cacheEntry struct {
	allowed  bool
	storedAt time.Time
	ttl      time.Duration
}

// decisionCache memoizes decisions in a bounded LRU. Freshness is judged
// against an injectable clock so expiry is testable without sleeping.
//
// Every clear bumps the generation. A decision computed under an older
// generation is dropped instead of stored.
type decisionCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time

	mu  sync.Mutex
	gen uint64
}

func newDecisionCache(size int, ttl time.Duration, now func() time.Time) (*decisionCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if now == nil {
		now = time.Now
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	return &decisionCache{entries: entries, ttl: ttl, now: now}, nil
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// get returns a fresh decision. A stale entry is evicted and reported as a miss.
func (c *decisionCache) get(key string) (allowed bool, ok bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return false, false
	}
	if entry.expired(c.now()) {
		c.entries.Remove(key)
		return false, false
	}
	return entry.allowed, true
}

// generation returns the current clear generation; pass it to set.
func (c *decisionCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// set stores a decision computed under gen. It reports false, storing
// nothing, when the cache was cleared since.
func (c *decisionCache) set(key string, allowed bool, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.entries.Add(key, cacheEntry{allowed: allowed, storedAt: c.now(), ttl: c.ttl})
	return true
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries.Purge()
}

func (c *decisionCache) len() int {
	return c.entries.Len()
}

// sweep evicts every expired entry and returns how many were removed.
func (c *decisionCache) sweep() int {
	now := c.now()
	removed := 0
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if ok && entry.expired(now) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}
