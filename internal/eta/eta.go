package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/bike-help/internal/geo"
	"github.com/example/bike-help/internal/models"
)

// Client is the interface used by handlers to estimate time-to-point.
type Client interface {
	EstimateSeconds(from, to models.Coord) (float64, error)
}

// Cache is a tiny in-memory cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Naive ETA: distance / speed_mps. In prod use a routing engine.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 5.5 // ~20 km/h, a relaxed cycling pace
	}
	d := geo.Distance(from, to)
	return d / speedMps
}
