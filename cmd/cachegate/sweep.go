package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cachegate/internal/config"
	"cachegate/internal/store"
	"cachegate/internal/sweeper"
	"cachegate/pkg/logging"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep against the durable store and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context())
		},
	}
}

func runSweep(ctx context.Context) error {
	logger := logging.DefaultLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.StoreBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
	}

	durable, err := store.NewDurable(store.Config{
		Backend:    cfg.StoreBackend,
		SQLitePath: cfg.SQLitePath,
		Prefix:     "cachegate",
	}, redisClient)
	if err != nil {
		return err
	}
	defer durable.Close()

	sw := sweeper.New(durable, sweeper.Policy{
		TTL:                 cfg.TTL(),
		MaxEntriesPerTenant: cfg.MaxEntriesPerTenant,
	})

	report, err := sw.Sweep(logging.WithLogger(ctx, logger))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
