package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sqlEntry(key, tenant, user string, createdAt time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Key:         key,
		TenantID:    tenant,
		ModelID:     "gpt-4",
		UserID:      user,
		Response:    "support is open 9-5",
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(ttl),
		ScanVersion: 1,
	}
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.Put(ctx, sqlEntry("k1", "acme", "user-1", now, time.Hour)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "acme", "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Response != "support is open 9-5" {
		t.Errorf("unexpected response %q", got.Response)
	}
	if got.ScanVersion != 1 || got.UserID != "user-1" || got.ModelID != "gpt-4" {
		t.Errorf("metadata not round-tripped: %+v", got)
	}
	if got.ExpiresAt.Sub(got.CreatedAt) != time.Hour {
		t.Errorf("expected expires_at - created_at == ttl, got %s", got.ExpiresAt.Sub(got.CreatedAt))
	}
}

func TestSQLiteStore_GetMiss(t *testing.T) {
	s := newTestSQLite(t)

	if _, err := s.Get(context.Background(), "acme", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpsertIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	e := sqlEntry("k1", "acme", "", now, time.Hour)
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Second write for the same key must not error; last write stands.
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	tenants, err := s.Tenants(ctx)
	if err != nil {
		t.Fatalf("Tenants failed: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("expected single tenant, got %v", tenants)
	}
}

func TestSQLiteStore_TenantIsolation(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Put(ctx, sqlEntry("k1", "acme", "", time.Now(), time.Hour)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, err := s.Get(ctx, "globex", "k1")
	if !errors.Is(err, ErrTenantIsolation) {
		t.Fatalf("expected ErrTenantIsolation, got %v", err)
	}
}

func TestSQLiteStore_ExpiredEntryIsMiss(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	if err := s.Put(ctx, sqlEntry("k1", "acme", "", past, time.Hour)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := s.Get(ctx, "acme", "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired entry, got %v", err)
	}
}

func TestSQLiteStore_DeleteExpired(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Put(ctx, sqlEntry("expired-1", "acme", "", now.Add(-48*time.Hour), time.Hour))
	_ = s.Put(ctx, sqlEntry("expired-2", "acme", "", now.Add(-24*time.Hour), time.Hour))
	_ = s.Put(ctx, sqlEntry("live-1", "acme", "", now, time.Hour))

	evicted, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d", evicted)
	}

	if _, err := s.Get(ctx, "acme", "live-1"); err != nil {
		t.Fatalf("live entry should survive: %v", err)
	}
}

func TestSQLiteStore_DeleteExpiredIsConditional(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	// Refreshed after the sweep's cutoff: must survive a sweep pinned to
	// an earlier timestamp.
	_ = s.Put(ctx, sqlEntry("k1", "acme", "", now, time.Hour))

	evicted, err := s.DeleteExpired(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if evicted != 0 {
		t.Fatalf("expected no evictions, got %d", evicted)
	}
	if _, err := s.Get(ctx, "acme", "k1"); err != nil {
		t.Fatalf("refreshed entry must survive sweep: %v", err)
	}
}

func TestSQLiteStore_TrimTenantOldestFirst(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, key := range []string{"k1", "k2", "k3", "k4"} {
		_ = s.Put(ctx, sqlEntry(key, "acme", "", base.Add(time.Duration(i)*time.Minute), 24*time.Hour))
	}
	_ = s.Put(ctx, sqlEntry("other", "globex", "", base, 24*time.Hour))

	evicted, err := s.TrimTenant(ctx, "acme", 2)
	if err != nil {
		t.Fatalf("TrimTenant failed: %v", err)
	}
	if evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d", evicted)
	}

	for _, key := range []string{"k1", "k2"} {
		if _, err := s.Get(ctx, "acme", key); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected oldest %s evicted, got %v", key, err)
		}
	}
	for _, key := range []string{"k3", "k4"} {
		if _, err := s.Get(ctx, "acme", key); err != nil {
			t.Errorf("expected newest %s retained, got %v", key, err)
		}
	}
	if _, err := s.Get(ctx, "globex", "other"); err != nil {
		t.Errorf("trim must not cross tenants: %v", err)
	}
}

func TestSQLiteStore_UserLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Put(ctx, sqlEntry("k1", "acme", "user-1", now, time.Hour))
	_ = s.Put(ctx, sqlEntry("k2", "acme", "user-1", now.Add(time.Second), time.Hour))
	_ = s.Put(ctx, sqlEntry("k3", "acme", "user-1", now.Add(2*time.Second), time.Hour))
	_ = s.Put(ctx, sqlEntry("k4", "acme", "user-2", now, time.Hour))

	entries, err := s.ListUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListUser failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	deleted, err := s.DeleteUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}

	entries, err = s.ListUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListUser failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no residual entries, got %d", len(entries))
	}

	// Other users are untouched.
	if _, err := s.Get(ctx, "acme", "k4"); err != nil {
		t.Fatalf("other user's entry should remain: %v", err)
	}
}

func TestSQLiteStore_DeleteIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "acme", "never-existed"); err != nil {
		t.Fatalf("deleting a missing key must not error: %v", err)
	}
}
