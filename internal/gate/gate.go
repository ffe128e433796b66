// Package gate implements the cache lookup/store protocol around the
// language-model call. The gate never talks to the model itself: callers
// consult it before the provider call and offer the fresh response back
// afterwards. Nothing is persisted or served without a clean PII scan,
// and hits are re-scanned before serving so entries written under an
// older detector never leak.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cachegate/internal/fingerprint"
	"cachegate/internal/metrics"
	"cachegate/internal/pii"
	"cachegate/internal/store"
	"cachegate/pkg/logging"
)

// Options configure a Gate at construction. The gate is built once at
// process start and passed by reference to handlers; there is no global.
type Options struct {
	// TTL is the retention window applied to every new entry.
	TTL time.Duration
	// ScanVersion is stamped on entries at store time.
	ScanVersion int
	// Enabled false turns the gate into a pass-through: every lookup
	// misses and every store is skipped.
	Enabled bool
	// WriteTimeout bounds the detached durable write that finishes even
	// when the caller abandons the request (default 10s).
	WriteTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Gate struct {
	durable   store.Store
	ephemeral store.Store
	scanner   *pii.Scanner
	opts      Options

	// collapses concurrent lookups for the same fingerprint into one
	// store read + safety-net scan
	group singleflight.Group
}

func New(durable, ephemeral store.Store, scanner *pii.Scanner, opts Options) *Gate {
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		durable:   durable,
		ephemeral: ephemeral,
		scanner:   scanner,
		opts:      opts,
	}
}

type lookupResult struct {
	response string
	hit      bool
}

// Lookup consults both tiers for a previously cached response. A hit is
// only served after the stored response passes a fresh PII scan; a dirty
// hit is evicted from both tiers and degrades to a miss. Store outages
// also degrade to a miss — the caller simply pays for a provider call.
func (g *Gate) Lookup(ctx context.Context, tenantID, modelID, query string) (string, bool, error) {
	if !g.opts.Enabled {
		metrics.LookupsTotal.WithLabelValues("disabled").Inc()
		return "", false, nil
	}

	key, err := fingerprint.New(tenantID, modelID, query)
	if err != nil {
		return "", false, err
	}

	v, err, _ := g.group.Do(key.String(), func() (any, error) {
		res, err := g.lookupOne(ctx, key)
		return res, err
	})
	if err != nil {
		return "", false, err
	}
	res := v.(lookupResult)
	return res.response, res.hit, nil
}

func (g *Gate) lookupOne(ctx context.Context, key fingerprint.Key) (lookupResult, error) {
	logger := logging.L(ctx)
	start := time.Now()

	entry, tier, err := g.read(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrTenantIsolation) {
			// Never degrade an isolation breach into a miss; abort.
			return lookupResult{}, err
		}
		logger.Warn("cache_read_degraded", zap.String("hash_key", key.Hash), zap.Error(err))
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
		return lookupResult{}, nil
	}
	if entry == nil {
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
		logger.Info("cache_decision",
			zap.String("hash_key", key.Hash),
			zap.String("tenant_id", key.TenantID),
			zap.String("model_id", key.ModelID),
			zap.Bool("cache_hit", false),
			zap.Duration("total_latency_ms", time.Since(start)),
		)
		return lookupResult{}, nil
	}

	// Safety net: the entry was clean when written, but the detector may
	// have improved since. Re-scan before serving.
	scan := g.scanner.Scan(ctx, entry.Response)
	if !scan.Clean {
		recordFindings(scan.Findings)
		metrics.SafetyNetEvictionsTotal.Inc()
		metrics.LookupsTotal.WithLabelValues("dirty_evicted").Inc()
		g.evict(ctx, key)
		logger.Warn("safety_net_eviction",
			zap.String("hash_key", key.Hash),
			zap.String("tenant_id", key.TenantID),
			zap.Int("findings", len(scan.Findings)),
			zap.Int("stored_scan_version", entry.ScanVersion),
		)
		return lookupResult{}, nil
	}

	// Mirror durable hits into the ephemeral tier for session repeats.
	if tier == "durable" {
		if err := g.ephemeral.Put(ctx, entry); err != nil {
			logger.Debug("ephemeral_mirror_failed", zap.Error(err))
		}
	}

	metrics.LookupsTotal.WithLabelValues("hit").Inc()
	logger.Info("cache_decision",
		zap.String("hash_key", key.Hash),
		zap.String("tenant_id", key.TenantID),
		zap.String("model_id", key.ModelID),
		zap.String("cache_tier", tier),
		zap.Bool("cache_hit", true),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	return lookupResult{response: entry.Response, hit: true}, nil
}

// read checks the ephemeral tier first, then the durable tier. A nil
// entry with nil error is a clean miss.
func (g *Gate) read(ctx context.Context, key fingerprint.Key) (*store.Entry, string, error) {
	entry, err := g.ephemeral.Get(ctx, key.TenantID, key.String())
	if err == nil {
		return entry, "ephemeral", nil
	}
	if errors.Is(err, store.ErrTenantIsolation) {
		return nil, "ephemeral", err
	}

	entry, err = g.durable.Get(ctx, key.TenantID, key.String())
	if err == nil {
		return entry, "durable", nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, "durable", nil
	}
	return nil, "durable", err
}

// Store offers a freshly generated response for caching. Both the query
// and the response must scan clean; otherwise the offer is skipped
// silently — a PII rejection is not an error, the caller already has the
// response to serve. Returns whether the entry was persisted.
func (g *Gate) Store(ctx context.Context, tenantID, modelID, userID, query, response string) (bool, error) {
	if !g.opts.Enabled {
		metrics.StoresTotal.WithLabelValues("disabled").Inc()
		return false, nil
	}

	key, err := fingerprint.New(tenantID, modelID, query)
	if err != nil {
		return false, err
	}
	logger := logging.L(ctx)

	if scan := g.scanner.Scan(ctx, query); !scan.Clean {
		recordFindings(scan.Findings)
		metrics.StoresTotal.WithLabelValues("pii_rejected").Inc()
		logger.Info("store_rejected",
			zap.String("hash_key", key.Hash),
			zap.String("reason", "query_pii"),
			zap.Int("findings", len(scan.Findings)),
		)
		return false, nil
	}
	if scan := g.scanner.Scan(ctx, response); !scan.Clean {
		recordFindings(scan.Findings)
		metrics.StoresTotal.WithLabelValues("pii_rejected").Inc()
		logger.Info("store_rejected",
			zap.String("hash_key", key.Hash),
			zap.String("reason", "response_pii"),
			zap.Int("findings", len(scan.Findings)),
		)
		return false, nil
	}

	now := g.opts.Now()
	entry := &store.Entry{
		Key:         key.String(),
		TenantID:    tenantID,
		ModelID:     modelID,
		UserID:      userID,
		Response:    response,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.opts.TTL),
		ScanVersion: g.opts.ScanVersion,
	}

	// The durable write must complete even if the caller walked away;
	// upserts are idempotent so fire-and-forget completion is safe.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.WriteTimeout)
	defer cancel()

	if err := g.durable.Put(writeCtx, entry); err != nil {
		metrics.StoresTotal.WithLabelValues("error").Inc()
		logger.Warn("cache_write_degraded", zap.String("hash_key", key.Hash), zap.Error(err))
		return false, nil
	}
	if err := g.ephemeral.Put(ctx, entry); err != nil {
		logger.Debug("ephemeral_mirror_failed", zap.Error(err))
	}

	metrics.StoresTotal.WithLabelValues("stored").Inc()
	logger.Info("cache_store",
		zap.String("hash_key", key.Hash),
		zap.String("tenant_id", tenantID),
		zap.String("model_id", modelID),
		zap.Time("expires_at", entry.ExpiresAt),
	)
	return true, nil
}

// evict removes a dirty entry from both tiers. Failures are logged, not
// surfaced: the entry is already being withheld from the caller.
func (g *Gate) evict(ctx context.Context, key fingerprint.Key) {
	logger := logging.L(ctx)
	if err := g.ephemeral.Delete(ctx, key.TenantID, key.String()); err != nil {
		logger.Warn("ephemeral_evict_failed", zap.Error(err))
	}

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.WriteTimeout)
	defer cancel()
	if err := g.durable.Delete(delCtx, key.TenantID, key.String()); err != nil {
		logger.Warn("durable_evict_failed", zap.Error(err))
	}
}

func recordFindings(findings []pii.Finding) {
	for _, f := range findings {
		metrics.PIIFindingsTotal.WithLabelValues(string(f.Category), string(f.Source)).Inc()
	}
}

// InvalidInput reports whether err came from fingerprint validation, so
// handlers can map it to a 400.
func InvalidInput(err error) bool {
	return errors.Is(err, fingerprint.ErrInvalidInput)
}

// String renders gate state for startup logs.
func (o Options) String() string {
	return fmt.Sprintf("enabled=%t ttl=%s scan_version=%d", o.Enabled, o.TTL, o.ScanVersion)
}
