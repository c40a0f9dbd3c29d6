// Package cache holds the gateway's two response-reuse tiers: an exact-match
// in-memory cache and a similarity probe against an external vector store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultCapacity = 200
	DefaultTTL      = 5 * time.Minute
)

// Entry is one cached response.
type Entry struct {
	Response string
	Engine   string

	storedAt time.Time
	ttl      time.Duration
}

// Cache is the exact-match tier. Eviction is FIFO on insertion order, not
// LRU: reads never refresh an entry's position. Expired entries are removed
// lazily on lookup.
type Cache struct {
	entries  map[string]*Entry
	order    []string
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
	clock    clock.Clock
}

func New(capacity int, ttl time.Duration) *Cache {
	return newWithClock(capacity, ttl, clock.New())
}

func newWithClock(capacity int, ttl time.Duration, clk clock.Clock) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:  make(map[string]*Entry),
		capacity: capacity,
		ttl:      ttl,
		clock:    clk,
	}
}

// Key derives the stable lookup key for a (system, message) pair.
func Key(system string, message string) string {
	hash := sha256.Sum256([]byte(system + "\x00" + message))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached entry for (system, message) if present and fresh.
// An expired entry is removed and reported as a miss.
func (c *Cache) Get(system string, message string) (*Entry, bool) {
	key := Key(system, message)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if c.clock.Now().Sub(entry.storedAt) >= entry.ttl {
		c.remove(key)
		return nil, false
	}
	return entry, true
}

// Put stores a response, evicting the oldest-inserted entry at capacity.
func (c *Cache) Put(system string, message string, response string, engine string) {
	key := Key(system, message)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.remove(key)
	}
	if len(c.entries) >= c.capacity {
		c.remove(c.order[0])
	}

	c.entries[key] = &Entry{
		Response: response,
		Engine:   engine,
		storedAt: c.clock.Now(),
		ttl:      c.ttl,
	}
	c.order = append(c.order, key)
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// remove deletes the entry and its insertion-order slot. Caller holds mu.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
