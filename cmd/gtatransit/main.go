package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gtatransit/internal/arrivals"
	"gtatransit/internal/config"
	"gtatransit/internal/handler"
	"gtatransit/internal/hub"
	"gtatransit/internal/ingestor"
	"gtatransit/internal/middleware"
	"gtatransit/internal/store"
	"gtatransit/pkg/gtfsstatic"
	"gtatransit/pkg/transitapi"
)

func main() {
	// Local runs pick up env from a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gtatransit server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"stop_feeds", len(cfg.StopFeeds),
	)

	stopStore := store.NewStopStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	defer stopStore.Close()

	wsHub := hub.NewHub(logger)

	apiClient := transitapi.New(cfg.GOAPIBaseURL, cfg.GOAPIKey, cfg.NextBusBaseURL, cfg.SubwayBaseURL, 15*time.Second)
	arrivalsSvc := arrivals.New(apiClient, cfg.GTFSRTFeeds, cfg.ArrivalsCacheTTL, logger)

	feeds := make([]ingestor.StopFeed, 0, len(cfg.StopFeeds))
	for agency, url := range cfg.StopFeeds {
		feeds = append(feeds, ingestor.StopFeed{Agency: agency, URL: url})
	}

	downloader := gtfsstatic.NewDownloader(logger)
	stopIng := ingestor.NewStopIngestor(downloader, stopStore, feeds, cfg.StopRefreshInterval, logger)
	poller := ingestor.NewArrivalsPoller(arrivalsSvc, stopStore, wsHub, cfg.ArrivalsPollInterval, logger)

	stopHandler := handler.NewStopHandler(stopStore, logger)
	arrivalsHandler := handler.NewArrivalsHandler(stopStore, arrivalsSvc, logger)
	wsHandler := handler.NewWSHandler(wsHub, stopStore, arrivalsSvc, logger)
	healthHandler := handler.NewHealthHandler(stopIng, stopStore)
	statsHandler := handler.NewStatsHandler(stopStore, wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/stops/nearby", stopHandler.NearbyStops)
	mux.HandleFunc("GET /v1/stops/code/{code}", stopHandler.GetStopByCode)
	mux.HandleFunc("GET /v1/stops/{id}", stopHandler.GetStop)
	mux.HandleFunc("GET /v1/stops/{id}/arrivals", arrivalsHandler.StopArrivals)
	mux.HandleFunc("GET /v1/agencies", stopHandler.ListAgencies)
	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	limiter := middleware.NewLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitExempt, logger)

	var root http.Handler = mux
	root = limiter.Middleware(root)
	root = handler.GzipMiddleware(root)
	root = handler.CORSMiddleware(root)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)

	go stopIng.Run(ctx)

	go poller.Run(ctx)

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

	logger.Info("shutdown complete")
}
