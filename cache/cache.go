package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/livebox/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.ScrapeResponse
	createdAt time.Time
}

// Cache is a simple in-memory cache for successful scrape responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries responses, none older than
// ttl. A background goroutine evicts expired entries until Close.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from the normalized room URL and scrape mode.
func Key(url, mode string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(mode))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a copy of a cached response younger than maxAgeMs
// milliseconds. If maxAgeMs <= 0, no lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ScrapeResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	age := time.Since(e.createdAt)
	if age > time.Duration(maxAgeMs)*time.Millisecond || age > c.ttl {
		return nil, false
	}

	resp := *e.response
	return &resp, true
}

// Set stores a copy of resp. If the cache is at capacity, a random entry is
// evicted to make room.
func (c *Cache) Set(key string, resp *models.ScrapeResponse) {
	stored := *resp

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		// Map iteration order is random in Go.
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  &stored,
		createdAt: time.Now(),
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	interval := c.ttl / 4
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired(time.Now())
		}
	}
}

func (c *Cache) evictExpired(now time.Time) {
	cutoff := now.Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
