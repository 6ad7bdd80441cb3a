package hooks

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/muhammadegaa/reely/internal/domain"
)

const cacheTTL = time.Hour

type cacheEntry struct {
	hooks    []domain.Hook
	duration float64
	written  time.Time
}

// Cache keeps hook results per URL so repeated analysis of the same video
// skips the download and model call. Entries expire after an hour.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached hooks and source duration for url, or false when
// absent or expired.
func (c *Cache) Get(url string) ([]domain.Hook, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(url)
	entry, ok := c.entries[key]
	if !ok {
		return nil, 0, false
	}
	if c.now().Sub(entry.written) >= cacheTTL {
		delete(c.entries, key)
		return nil, 0, false
	}
	return entry.hooks, entry.duration, true
}

// Put stores hooks and the source duration for url unless a fresh entry
// already exists, so a concurrent duplicate analysis never overwrites an
// earlier result.
func (c *Cache) Put(url string, hooks []domain.Hook, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(url)
	if entry, ok := c.entries[key]; ok && c.now().Sub(entry.written) < cacheTTL {
		return
	}
	c.entries[key] = cacheEntry{hooks: hooks, duration: duration, written: c.now()}
}
