package pricecache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"mse_backend/services/marketdata"
)

type entry struct {
	series    *marketdata.Series
	expiresAt time.Time
}

// Cache is the volatile tier: an in-memory TTL map of price series. It is
// safe for concurrent use and runs a background janitor that evicts
// expired entries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	hits    int64
	misses  int64
	done    chan struct{}
	once    sync.Once
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func New() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// HistoricalKey builds the cache key for a historical series. Keys carry
// the calendar day so stale keys age out naturally across midnight.
func HistoricalKey(symbol string, rng marketdata.Range, day time.Time) string {
	return fmt.Sprintf("hist:%s:%s:%s", strings.ToUpper(symbol), rng, day.Format("2006-01-02"))
}

// IntradayKey builds the cache key for a live quote series
func IntradayKey(symbol string) string {
	return "intraday:" + strings.ToUpper(symbol)
}

// Get returns the cached series for key, or nil if absent or expired.
func (c *Cache) Get(key string) *marketdata.Series {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.series
}

// Set stores a series under key with the given TTL.
func (c *Cache) Set(key string, series *marketdata.Series, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{series: series, expiresAt: time.Now().Add(ttl)}
}

// ExtendTTL pushes out the expiry of an existing entry without touching
// its payload. Returns false if the key is not present (expired entries
// still count: degradation may legitimately revive them).
func (c *Cache) ExtendTTL(key string, extra time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	base := e.expiresAt
	if now := time.Now(); base.Before(now) {
		base = now
	}
	e.expiresAt = base.Add(extra)
	c.entries[key] = e
	return true
}

// ClearAll drops every entry. Counters survive the clear.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	return n
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Stop terminates the janitor goroutine.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
