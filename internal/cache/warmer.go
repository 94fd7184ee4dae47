package cache

import (
	"context"
	"log/slog"
	"time"

	"trainpulse/internal/catalog"
	"trainpulse/internal/fusion"
	"trainpulse/internal/position"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
)

// CacheWarmer pushes the static catalog and periodic position snapshots
// into Redis so horizontally-scaled API replicas can serve reads without
// each holding a direct fusion.Publisher subscription.
type CacheWarmer struct {
	cache      *RedisCache
	catalog    *catalog.Store
	trips      *timetable.Store
	segments   map[string]*segment.Index
	publisher  *fusion.Publisher
	staleAfter time.Duration
	ttl        time.Duration
	loc        *time.Location
	logger     *slog.Logger
}

func NewCacheWarmer(cache *RedisCache, catalogStore *catalog.Store, trips *timetable.Store, segments map[string]*segment.Index, publisher *fusion.Publisher, staleAfter, ttl time.Duration, loc *time.Location, logger *slog.Logger) *CacheWarmer {
	return &CacheWarmer{
		cache:      cache,
		catalog:    catalogStore,
		trips:      trips,
		segments:   segments,
		publisher:  publisher,
		staleAfter: staleAfter,
		ttl:        ttl,
		loc:        loc,
		logger:     logger.With("component", "cache_warmer"),
	}
}

// WarmCatalog caches the static lines/stations lists and every line's
// shape geometry. Intended to run once at startup; the catalog only
// changes on process restart.
func (w *CacheWarmer) WarmCatalog(ctx context.Context) error {
	start := time.Now()

	lines := w.catalog.Lines()
	if err := w.cache.SetJSONCompressed(ctx, KeyCatalogLines, lines, w.ttl); err != nil {
		return err
	}
	stations := w.catalog.Stations()
	if err := w.cache.SetJSONCompressed(ctx, KeyCatalogStations, stations, w.ttl); err != nil {
		return err
	}

	warmed := 0
	for _, line := range lines {
		if !line.Shape.Valid() {
			continue
		}
		if err := w.cache.SetJSONCompressed(ctx, KeyLineShape(line.ID), line.Shape, w.ttl); err != nil {
			w.logger.Debug("failed to cache line shape", "line", line.ID, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("warmed catalog cache",
		"lines", len(lines),
		"stations", len(stations),
		"shapes_warmed", warmed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// WarmPositions recomputes and caches the current position set for every
// known line. Called once per fusion refresh period so cached reads never
// lag the published snapshot by more than one cycle.
func (w *CacheWarmer) WarmPositions(ctx context.Context) error {
	start := time.Now()
	now := time.Now().In(w.loc)
	snap := w.publisher.Snapshot()
	warmed := 0

	for lineID, idx := range w.segments {
		positions, err := position.Positions(lineID, now, w.catalog, w.trips, idx, snap, w.staleAfter)
		if err != nil {
			w.logger.Debug("failed to compute positions for cache", "line", lineID, "error", err)
			continue
		}
		if err := w.cache.SetJSON(ctx, KeyLinePositions(lineID), positions, w.ttl); err != nil {
			w.logger.Debug("failed to cache positions", "line", lineID, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Debug("warmed position cache",
		"lines_warmed", warmed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Run warms the catalog once, then refreshes cached positions every
// period until ctx is cancelled.
func (w *CacheWarmer) Run(ctx context.Context, period time.Duration) {
	if err := w.WarmCatalog(ctx); err != nil {
		w.logger.Error("failed to warm catalog cache", "error", err)
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WarmPositions(ctx); err != nil {
				w.logger.Error("failed to warm position cache", "error", err)
			}
		}
	}
}
