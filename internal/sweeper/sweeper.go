// Package sweeper enforces retention against the durable store: entries
// past their TTL are deleted, and tenants over the entry cap lose their
// oldest entries first.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cachegate/internal/metrics"
	"cachegate/internal/store"
	"cachegate/pkg/logging"
)

// Policy is loaded once at startup and immutable for the process
// lifetime; changing retention means restarting or an explicit reload,
// never implicit mutation.
type Policy struct {
	TTL                 time.Duration
	MaxEntriesPerTenant int
}

// Report summarizes one sweep.
type Report struct {
	ExpiredEvicted int `json:"expired_evicted"`
	OverCapEvicted int `json:"over_cap_evicted"`
}

func (r Report) Total() int { return r.ExpiredEvicted + r.OverCapEvicted }

type Sweeper struct {
	durable store.Store
	policy  Policy
	now     func() time.Time
}

func New(durable store.Store, policy Policy) *Sweeper {
	return &Sweeper{durable: durable, policy: policy, now: time.Now}
}

// Sweep runs one retention pass. Expiry uses the store's conditional
// delete (expires_at <= now), so an entry refreshed after the sweep
// began survives; the sweeper never races the gate's upserts.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	logger := logging.L(ctx)
	start := time.Now()

	var report Report

	expired, err := s.durable.DeleteExpired(ctx, s.now())
	if err != nil {
		return report, err
	}
	report.ExpiredEvicted = expired
	metrics.SweepEvictedTotal.WithLabelValues("expired").Add(float64(expired))

	if s.policy.MaxEntriesPerTenant > 0 {
		tenants, err := s.durable.Tenants(ctx)
		if err != nil {
			return report, err
		}
		for _, tenant := range tenants {
			trimmed, err := s.durable.TrimTenant(ctx, tenant, s.policy.MaxEntriesPerTenant)
			if err != nil {
				return report, err
			}
			if trimmed > 0 {
				logger.Info("tenant_trimmed",
					zap.String("tenant_id", tenant),
					zap.Int("evicted", trimmed),
					zap.Int("max_entries", s.policy.MaxEntriesPerTenant),
				)
			}
			report.OverCapEvicted += trimmed
		}
		metrics.SweepEvictedTotal.WithLabelValues("over_cap").Add(float64(report.OverCapEvicted))
	}

	logger.Info("sweep_completed",
		zap.Int("expired_evicted", report.ExpiredEvicted),
		zap.Int("over_cap_evicted", report.OverCapEvicted),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// Run sweeps on a fixed schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.L(ctx)
	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error("sweep_failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
