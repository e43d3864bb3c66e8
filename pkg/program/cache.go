package program

import (
	"sync"
	"time"
)

// FragmentCache stores rendered fragment output keyed by the cache
// directive's key expression. Entries expire by TTL; expired entries are
// dropped lazily on lookup.
type FragmentCache struct {
	mu      sync.RWMutex
	entries map[string]fragmentEntry
}

type fragmentEntry struct {
	body    string
	expires time.Time // zero means no expiry
}

// NewFragmentCache builds an empty fragment cache.
func NewFragmentCache() *FragmentCache {
	return &FragmentCache{entries: make(map[string]fragmentEntry)}
}

// Get returns the cached body for key, if present and not expired.
func (c *FragmentCache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}
	return e.body, true
}

// Set stores body under key. A zero ttl never expires.
func (c *FragmentCache) Set(key, body string, ttl time.Duration) {
	e := fragmentEntry{body: body}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Clear drops every cached fragment.
func (c *FragmentCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]fragmentEntry)
	c.mu.Unlock()
}
