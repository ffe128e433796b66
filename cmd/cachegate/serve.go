package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cachegate/internal/analyzer"
	"cachegate/internal/config"
	"cachegate/internal/gate"
	"cachegate/internal/handlers"
	"cachegate/internal/httpserver"
	"cachegate/internal/metrics"
	"cachegate/internal/pii"
	"cachegate/internal/store"
	"cachegate/internal/sweeper"
	"cachegate/pkg/logging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cache gate HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.Bool("cache_enabled", cfg.CacheEnabled),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Int("cache_ttl_seconds", cfg.CacheTTLSeconds),
		zap.Float64("pii_confidence_threshold", cfg.PIIConfidenceThreshold),
		zap.Int("max_entries_per_tenant", cfg.MaxEntriesPerTenant),
		zap.Int("pii_scan_version", cfg.ScanVersion),
		zap.String("pii_analyzer_url", cfg.AnalyzerURL),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.StoreBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Stores (durable + ephemeral tiers) -----
	durable, err := store.NewDurable(store.Config{
		Backend:    cfg.StoreBackend,
		SQLitePath: cfg.SQLitePath,
		Prefix:     "cachegate",
	}, redisClient)
	if err != nil {
		return err
	}
	durable = store.NewLoggingStore(durable, "durable")
	defer durable.Close()

	ephemeral := store.NewLoggingStore(
		store.NewMemoryStore(cfg.EphemeralMaxEntries, 5*time.Minute),
		"ephemeral",
	)
	defer ephemeral.Close()

	// ----- PII scanner -----
	var recognizer pii.Recognizer
	if cfg.AnalyzerURL != "" {
		recognizer, err = analyzer.NewClient(analyzer.Config{
			BaseURL: cfg.AnalyzerURL,
			APIKey:  cfg.AnalyzerAPIKey,
			Timeout: cfg.AnalyzerTimeout(),
		})
		if err != nil {
			return err
		}
	} else {
		recognizer = pii.NewHeuristicRecognizer()
	}
	scanner := pii.NewScanner(recognizer, cfg.PIIConfidenceThreshold, cfg.AnalyzerTimeout())

	// ----- Cache gate -----
	g := gate.New(durable, ephemeral, scanner, gate.Options{
		TTL:         cfg.TTL(),
		ScanVersion: cfg.ScanVersion,
		Enabled:     cfg.CacheEnabled,
	})

	// ----- Retention sweeper -----
	sweepCtx, stopSweeper := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer stopSweeper()
	sw := sweeper.New(durable, sweeper.Policy{
		TTL:                 cfg.TTL(),
		MaxEntriesPerTenant: cfg.MaxEntriesPerTenant,
	})
	go sw.Run(sweepCtx, cfg.SweepInterval())

	// ----- Handlers -----
	cacheHandler := handlers.NewCacheHandler(g)
	dsHandler := handlers.NewDataSubjectHandler(durable, ephemeral)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, cacheHandler, dsHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting cachegate",
		zap.String("addr", srv.Addr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("cache_enabled", cfg.CacheEnabled),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
