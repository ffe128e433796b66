// Package store holds the cache entry model and the two storage tiers:
// an ephemeral in-process tier for same-session repeats and a durable
// tier (SQLite or Redis) that is the source of truth. Both implement the
// same Store interface; authority differs, shape does not.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is the clean-miss sentinel.
	ErrNotFound = errors.New("store: entry not found")

	// ErrUnavailable wraps backend failures. The gate degrades these to
	// pass-through: lookups miss, stores are skipped.
	ErrUnavailable = errors.New("store: backend unavailable")

	// ErrTenantIsolation marks an entry surfacing for the wrong tenant.
	// Fatal for the request; never served, never silently ignored.
	ErrTenantIsolation = errors.New("store: tenant isolation violation")
)

// Entry is one cached response. The originating query is never stored,
// only its fingerprint (Key). An entry exists only if both the query and
// the response passed a PII scan at ScanVersion.
type Entry struct {
	Key         string    `json:"key"`
	TenantID    string    `json:"tenant_id"`
	ModelID     string    `json:"model_id"`
	UserID      string    `json:"user_id,omitempty"`
	Response    string    `json:"response"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ScanVersion int       `json:"pii_scan_version"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Store is the shared contract of both tiers.
//
// Contract:
//   - Put is an idempotent upsert keyed by Entry.Key; concurrent writes
//     for the same key are safe, last write stands.
//   - Get returns ErrNotFound on a miss and ErrTenantIsolation when the
//     keyed entry belongs to another tenant.
//   - Delete is idempotent; deleting a missing key is not an error.
//   - DeleteExpired is conditional on expires_at <= now, so an entry
//     refreshed mid-sweep survives.
//   - Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, tenantID, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, tenantID, key string) error

	// Retention and data-subject operations. These only ever delete or
	// read; the gate is the sole writer of response payloads.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	TrimTenant(ctx context.Context, tenantID string, max int) (int, error)
	Tenants(ctx context.Context) ([]string, error)
	ListUser(ctx context.Context, userID string) ([]*Entry, error)
	DeleteUser(ctx context.Context, userID string) (int, error)

	Close() error
}
