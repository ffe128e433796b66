package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"cachegate/internal/store"
)

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(128, time.Minute)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func put(t *testing.T, s store.Store, key, tenant string, createdAt time.Time, ttl time.Duration) {
	t.Helper()
	err := s.Put(context.Background(), &store.Entry{
		Key:         key,
		TenantID:    tenant,
		ModelID:     "gpt-4",
		Response:    "cached answer",
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(ttl),
		ScanVersion: 1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

// An entry past its TTL is evicted by the sweep and a subsequent read
// misses.
func TestSweeper_EvictsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	put(t, s, "stale", "acme", now.Add(-48*time.Hour), time.Hour)
	put(t, s, "fresh", "acme", now, time.Hour)

	sw := New(s, Policy{TTL: time.Hour})
	report, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.ExpiredEvicted != 1 {
		t.Fatalf("expected 1 expired eviction, got %d", report.ExpiredEvicted)
	}

	if _, err := s.Get(ctx, "acme", "stale"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected swept entry to miss, got %v", err)
	}
	if _, err := s.Get(ctx, "acme", "fresh"); err != nil {
		t.Fatalf("live entry must survive sweep: %v", err)
	}
}

// Tenants over the cap lose oldest entries first; other tenants are
// untouched.
func TestSweeper_TrimsOverCapTenants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, key := range []string{"k1", "k2", "k3", "k4"} {
		put(t, s, key, "acme", base.Add(time.Duration(i)*time.Minute), 24*time.Hour)
	}
	put(t, s, "other", "globex", base, 24*time.Hour)

	sw := New(s, Policy{TTL: 24 * time.Hour, MaxEntriesPerTenant: 2})
	report, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.OverCapEvicted != 2 {
		t.Fatalf("expected 2 over-cap evictions, got %d", report.OverCapEvicted)
	}

	if _, err := s.Get(ctx, "acme", "k1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected oldest entry trimmed, got %v", err)
	}
	if _, err := s.Get(ctx, "acme", "k4"); err != nil {
		t.Errorf("expected newest entry retained: %v", err)
	}
	if _, err := s.Get(ctx, "globex", "other"); err != nil {
		t.Errorf("under-cap tenant must be untouched: %v", err)
	}
}

func TestSweeper_NoCapWhenUnset(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	for i, key := range []string{"k1", "k2", "k3"} {
		put(t, s, key, "acme", base.Add(time.Duration(i)*time.Second), 24*time.Hour)
	}

	sw := New(s, Policy{TTL: 24 * time.Hour})
	report, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Total() != 0 {
		t.Fatalf("expected no evictions without a cap, got %d", report.Total())
	}
}

func TestSweeper_ReportTotal(t *testing.T) {
	r := Report{ExpiredEvicted: 3, OverCapEvicted: 2}
	if r.Total() != 5 {
		t.Fatalf("expected total 5, got %d", r.Total())
	}
}
