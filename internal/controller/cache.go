package controller

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/trailhub/trailsuggest/suggest"
)

// CacheEntry is a cached geocoder answer.
type CacheEntry struct {
	Items    []suggest.Suggestion
	TookMs   int64
	storedAt time.Time
}

// Cache is a lightweight in-memory cache with TTL and an entry cap.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	mu         sync.RWMutex
	store      map[string]CacheEntry
}

// NewCache returns a cache; zero ttl disables caching. A non-positive
// maxEntries leaves the cache unbounded.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		store:      make(map[string]CacheEntry),
	}
}

// Get retrieves an entry if still fresh.
func (c *Cache) Get(key string) (CacheEntry, bool) {
	if c == nil || c.ttl <= 0 {
		return CacheEntry{}, false
	}

	c.mu.RLock()
	entry, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return CacheEntry{}, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return CacheEntry{}, false
	}
	entry.Items = suggest.Clone(entry.Items)
	return entry, true
}

// Set stores an entry. When the cache is full, expired entries are dropped
// first and then the oldest entry.
func (c *Cache) Set(key string, entry CacheEntry) {
	if c == nil || c.ttl <= 0 {
		return
	}
	entry.Items = suggest.Clone(entry.Items)
	entry.storedAt = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.store[key]; !exists && c.maxEntries > 0 && len(c.store) >= c.maxEntries {
		c.evictLocked(entry.storedAt)
	}
	c.store[key] = entry
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.store = make(map[string]CacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, e := range c.store {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.store, key)
			continue
		}
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = key, e.storedAt
		}
	}
	if len(c.store) >= c.maxEntries && oldestKey != "" {
		delete(c.store, oldestKey)
	}
}

// BuildCacheKey hashes the parameters that influence geocoder output.
func BuildCacheKey(query string, limit int, policyVersion string) string {
	payload := map[string]any{
		"query":          query,
		"limit":          limit,
		"policy_version": policyVersion,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
