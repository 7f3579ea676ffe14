// Package catalog maintains the live set of map points the rest of the
// service reads: the monitor's candidate set and the map/list views. It keeps
// an immutable snapshot refreshed from the document store via change stream,
// falling back to polling, and mirrors point locations into the Redis geo
// index.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/bike-help/internal/geo"
	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/observability"
	"github.com/example/bike-help/internal/storage"
)

// ErrNotLoaded is returned by Snapshot before the first successful load.
// Callers treat it as "zero candidates", never as a fatal condition.
var ErrNotLoaded = errors.New("catalog: point set not loaded yet")

// Watcher is the optional change-notification facility of the store.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

type Catalog struct {
	store   storage.PointStore
	watcher Watcher       // nil disables change-stream refresh
	mirror  *geo.RedisGeo // nil disables the Redis geo mirror
	logger  *slog.Logger
	refresh time.Duration

	kick chan struct{} // manual refresh requests from mutating handlers

	mu      sync.RWMutex
	points  []models.MapPoint
	prevIDs map[string]struct{}
	loaded  bool
}

func New(store storage.PointStore, watcher Watcher, mirror *geo.RedisGeo, refresh time.Duration, logger *slog.Logger) *Catalog {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &Catalog{
		store:   store,
		watcher: watcher,
		mirror:  mirror,
		logger:  logger,
		refresh: refresh,
		kick:    make(chan struct{}, 1),
		prevIDs: make(map[string]struct{}),
	}
}

// Snapshot returns a copy of the current point set. The caller owns the
// returned slice; mutations never leak back into the catalog.
func (c *Catalog) Snapshot(ctx context.Context) ([]models.MapPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	out := make([]models.MapPoint, len(c.points))
	copy(out, c.points)
	return out, nil
}

// Invalidate requests an immediate refresh. Used by mutating handlers so a
// freshly created point is visible without waiting for the next poll.
func (c *Catalog) Invalidate() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Refresh reloads the point set from the store and mirrors it to Redis.
func (c *Catalog) Refresh(ctx context.Context) error {
	points, err := c.store.ListPoints(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(points))
	for _, p := range points {
		ids[p.ID] = struct{}{}
	}

	c.mu.Lock()
	removed := make([]string, 0)
	for id := range c.prevIDs {
		if _, ok := ids[id]; !ok {
			removed = append(removed, id)
		}
	}
	c.points = points
	c.prevIDs = ids
	c.loaded = true
	c.mu.Unlock()

	observability.PointsTracked.Set(float64(len(points)))

	if c.mirror != nil {
		for _, p := range points {
			if err := c.mirror.UpsertPoint(ctx, p); err != nil {
				c.logger.Warn("geo mirror upsert failed", "point_id", p.ID, "error", err)
				break
			}
		}
		for _, id := range removed {
			if err := c.mirror.RemovePoint(ctx, id); err != nil {
				c.logger.Warn("geo mirror remove failed", "point_id", id, "error", err)
			}
		}
	}
	return nil
}

// Run keeps the snapshot fresh until ctx is canceled. Change-stream events,
// manual invalidations, and the poll ticker all funnel into the same reload.
func (c *Catalog) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial catalog load failed", "error", err)
	}

	var changes <-chan struct{}
	if c.watcher != nil {
		ch, err := c.watcher.Watch(ctx)
		if err != nil {
			c.logger.Warn("change stream unavailable, polling only", "error", err)
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.kick:
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
		}
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("catalog refresh failed", "error", err)
		}
	}
}
