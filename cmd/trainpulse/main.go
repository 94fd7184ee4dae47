package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainpulse/internal/cache"
	"trainpulse/internal/calendar"
	"trainpulse/internal/catalog"
	"trainpulse/internal/config"
	"trainpulse/internal/domain"
	"trainpulse/internal/fusion"
	"trainpulse/internal/handler"
	"trainpulse/internal/hub"
	"trainpulse/internal/middleware"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
	"trainpulse/pkg/gtfsrt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting trainpulse server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"redis_enabled", cfg.RedisEnabled,
		"local_tz", cfg.LocalTZ,
	)

	loc, err := time.LoadLocation(cfg.LocalTZ)
	if err != nil {
		logger.Error("failed to load LOCAL_TZ", "local_tz", cfg.LocalTZ, "error", err)
		os.Exit(2)
	}

	cal, err := calendar.New(cfg.HolidaysFile)
	if err != nil {
		logger.Error("failed to load holiday calendar", "error", err)
		os.Exit(1)
	}

	bbox := catalog.BBox{
		MinLon: cfg.BBoxMinLon, MaxLon: cfg.BBoxMaxLon,
		MinLat: cfg.BBoxMinLat, MaxLat: cfg.BBoxMaxLat,
	}
	catalogStore, err := catalog.Load(cfg.StaticDataDir, bbox, logger)
	if err != nil {
		logger.Error("failed to load static catalog", "error", err)
		os.Exit(1)
	}

	stationExists := func(id string) bool {
		_, ok := catalogStore.Station(id)
		return ok
	}
	lineOrder := func(lineID string) []string {
		line, ok := catalogStore.Line(lineID)
		if !ok {
			return nil
		}
		return line.StationIDs
	}

	lines := catalogStore.Lines()
	tripsByLine := make(map[string][]*domain.Trip, len(lines))
	for _, line := range lines {
		trips, err := timetable.LoadLine(cfg.StaticDataDir, line.ID, stationExists, lineOrder, logger)
		if err != nil {
			logger.Error("failed to load line timetable", "line_id", line.ID, "error", err)
			os.Exit(1)
		}
		tripsByLine[line.ID] = trips
	}

	tripStore := timetable.NewStore(tripsByLine)

	segmentIndexes := make(map[string]*segment.Index, len(lines))
	for _, line := range lines {
		segmentIndexes[line.ID] = segment.Build(line.ID, tripStore)
	}

	rtClient := gtfsrt.New(cfg.GTFSRTURL, cfg.GTFSRTKey, cfg.FetchTimeout)
	publisher := fusion.NewPublisher(rtClient, tripStore, segmentIndexes, cal, loc,
		cfg.DegradedAfterFails, cfg.OffsetClampMin, cfg.OffsetClampMax, logger)

	query := &handler.QueryService{
		Catalog:    catalogStore,
		Trips:      tripStore,
		Segments:   segmentIndexes,
		Publisher:  publisher,
		StaleAfter: 2 * cfg.RefreshInterval,
		Loc:        loc,
	}

	var redisCache *cache.RedisCache
	var cacheWarmer *cache.CacheWarmer
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			logger.Warn("continuing without Redis cache")
			redisCache = nil
		} else {
			logger.Info("connected to Redis", "addr", cfg.RedisAddr)
			cacheWarmer = cache.NewCacheWarmer(redisCache, catalogStore, tripStore, segmentIndexes, publisher,
				query.StaleAfter, cfg.CacheTTL, loc, logger)
		}
	}

	wsHub := hub.NewHub(logger)
	wsHandler := handler.NewWSHandler(wsHub, query, logger)
	linesHandler := handler.NewLinesHandler(catalogStore, query, logger)
	healthHandler := handler.NewHealthHandler(publisher, catalogStore)
	statsHandler := handler.NewStatsHandler(catalogStore, tripStore, publisher)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/lines", linesHandler.ListLines)
	mux.HandleFunc("GET /v1/lines/{line}", linesHandler.GetLine)
	mux.HandleFunc("GET /v1/lines/{line}/stations", linesHandler.GetLineStations)
	mux.HandleFunc("GET /v1/lines/{line}/shape", linesHandler.GetLineShape)
	mux.HandleFunc("GET /v1/lines/{line}/positions", linesHandler.GetLinePositions)
	mux.HandleFunc("PATCH /v1/stations/{id}", linesHandler.PatchStation)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	mux.HandleFunc("GET /stats", statsHandler.GetStats)

	// Apply middleware chain: CORS -> Gzip -> RateLimit -> Handler
	finalHandler := handler.CORSMiddleware(cfg.CORSAllowOrigin)(
		handler.GzipMiddleware(
			rateLimiter.Middleware(mux),
		),
	)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)
	go publisher.Run(ctx, cfg.RefreshInterval)
	go broadcastLoop(ctx, query, wsHub, cfg.RefreshInterval)

	if cacheWarmer != nil {
		go cacheWarmer.Run(ctx, cfg.RefreshInterval)
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			logger.Error("Redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// broadcastLoop recomputes positions for every line once per refresh
// period and pushes them to the websocket hub, independent of the fusion
// publisher's own cycle so a slow or stalled hub fanout never blocks
// fusion refresh.
func broadcastLoop(ctx context.Context, query *handler.QueryService, wsHub *hub.Hub, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			byLine := query.AllLines(now)
			updates := make([]hub.LineUpdate, 0, len(byLine))
			for lineID, positions := range byLine {
				updates = append(updates, hub.LineUpdate{LineID: lineID, Positions: positions})
			}
			wsHub.Broadcast(updates)
		}
	}
}
