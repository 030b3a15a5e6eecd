package download

import (
	"strings"
	"sync"
	"time"
)

// DefaultURLTTL is how long a resolved signed URL stays usable. Signed URLs
// expire server-side, so entries are short-lived.
const DefaultURLTTL = 10 * time.Minute

type cacheEntry struct {
	url     string
	expires time.Time
}

// URLCache memoizes resolved download URLs per (kind, path) with a TTL.
type URLCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewURLCache creates a cache. A non-positive ttl falls back to DefaultURLTTL.
func NewURLCache(ttl time.Duration) *URLCache {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &URLCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(kind, path string) string {
	return kind + "|" + strings.ToLower(strings.TrimSpace(path))
}

// Get returns a cached URL that has not expired.
func (c *URLCache) Get(kind, path string) (string, bool) {
	key := cacheKey(kind, path)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.url, true
}

// Put stores a resolved URL.
func (c *URLCache) Put(kind, path, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(kind, path)] = cacheEntry{url: url, expires: c.now().Add(c.ttl)}
}

// Clear drops every entry.
func (c *URLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the current entry count, expired entries included.
func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
