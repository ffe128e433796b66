package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cachegate/internal/metrics"
	"cachegate/pkg/logging"
)

// LoggingStore wraps a Store with logging + metrics for the hot-path
// operations. tier labels the wrapped store in logs and metrics
// ("durable" or "ephemeral").
type LoggingStore struct {
	inner Store
	tier  string
}

// NewLoggingStore returns a store that logs and records metrics.
func NewLoggingStore(inner Store, tier string) Store {
	return &LoggingStore{inner: inner, tier: tier}
}

func (s *LoggingStore) Get(ctx context.Context, tenantID, key string) (*Entry, error) {
	start := time.Now()
	entry, err := s.inner.Get(ctx, tenantID, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	metrics.StoreOpSeconds.WithLabelValues(s.tier, "get").Observe(time.Since(start).Seconds())

	result := "hit"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "miss"
	case err != nil:
		result = "error"
	}

	fields := []zap.Field{
		zap.String("cache_tier", s.tier),
		zap.String("hash_key", key),
		zap.String("tenant_id", tenantID),
		zap.String("store_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Error("store_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("store_get", fields...)
	}

	return entry, err
}

func (s *LoggingStore) Put(ctx context.Context, entry *Entry) error {
	start := time.Now()
	err := s.inner.Put(ctx, entry)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	metrics.StoreOpSeconds.WithLabelValues(s.tier, "put").Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("cache_tier", s.tier),
		zap.String("hash_key", entry.Key),
		zap.String("tenant_id", entry.TenantID),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("store_put", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("store_put", fields...)
	}

	return err
}

func (s *LoggingStore) Delete(ctx context.Context, tenantID, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, tenantID, key)

	metrics.StoreOpSeconds.WithLabelValues(s.tier, "delete").Observe(time.Since(start).Seconds())

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("cache_tier", s.tier),
		zap.String("hash_key", key),
		zap.String("tenant_id", tenantID),
	}
	if err != nil {
		logger.Error("store_delete", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("store_delete", fields...)
	}

	return err
}

func (s *LoggingStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.inner.DeleteExpired(ctx, now)
}

func (s *LoggingStore) TrimTenant(ctx context.Context, tenantID string, max int) (int, error) {
	return s.inner.TrimTenant(ctx, tenantID, max)
}

func (s *LoggingStore) Tenants(ctx context.Context) ([]string, error) {
	return s.inner.Tenants(ctx)
}

func (s *LoggingStore) ListUser(ctx context.Context, userID string) ([]*Entry, error) {
	return s.inner.ListUser(ctx, userID)
}

func (s *LoggingStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	start := time.Now()
	n, err := s.inner.DeleteUser(ctx, userID)

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("cache_tier", s.tier),
		zap.String("user_id", userID),
		zap.Int("deleted", n),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		logger.Error("store_delete_user", append(fields, zap.Error(err))...)
	} else {
		logger.Info("store_delete_user", fields...)
	}

	return n, err
}

func (s *LoggingStore) Close() error {
	return s.inner.Close()
}
