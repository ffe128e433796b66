package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default durable tier. Schema is migrated at open.
// Tenant isolation is enforced in the storage layer: every read verifies
// the row's tenant against the caller's before anything is returned.
type SQLiteStore struct {
	db *sql.DB
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	model_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	response TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	scan_version INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_tenant_expires ON cache_entries(tenant_id, expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_entries_tenant_created ON cache_entries(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_cache_entries_user ON cache_entries(user_id);
`

// NewSQLiteStore opens (or creates) the durable cache database.
// dsn can be a file path (e.g. /var/lib/cachegate/cache.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "cachegate.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if _, err := db.Exec(createEntriesTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, tenantID, key string) (*Entry, error) {
	// Select by key alone so a tenant mismatch is detected rather than
	// disguised as a miss. The tenant is folded into the fingerprint, so
	// a mismatch here means corruption, and serving would leak.
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, tenant_id, model_id, user_id, response, created_at, expires_at, scan_version
		 FROM cache_entries WHERE cache_key = ?`, key)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite get: %v", ErrUnavailable, err)
	}
	if entry.TenantID != tenantID {
		return nil, fmt.Errorf("%w: entry %s held by tenant %s", ErrTenantIsolation, key, entry.TenantID)
	}
	if entry.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, tenant_id, model_id, user_id, response, created_at, expires_at, scan_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			model_id = excluded.model_id,
			user_id = excluded.user_id,
			response = excluded.response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			scan_version = excluded.scan_version`,
		entry.Key, entry.TenantID, entry.ModelID, entry.UserID, entry.Response,
		entry.CreatedAt.UnixNano(), entry.ExpiresAt.UnixNano(), entry.ScanVersion)
	if err != nil {
		return fmt.Errorf("%w: sqlite put: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, tenantID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key = ? AND tenant_id = ?`, key, tenantID)
	if err != nil {
		return fmt.Errorf("%w: sqlite delete: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite delete expired: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite rows affected: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (s *SQLiteStore) TrimTenant(ctx context.Context, tenantID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite tenant count: %v", ErrUnavailable, err)
	}
	if count <= max {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key IN (
			SELECT cache_key FROM cache_entries WHERE tenant_id = ?
			ORDER BY created_at ASC LIMIT ?
		)`, tenantID, count-max)
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite trim tenant: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite rows affected: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite tenants: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan tenant: %v", ErrUnavailable, err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite tenants: %v", ErrUnavailable, err)
	}
	return tenants, nil
}

func (s *SQLiteStore) ListUser(ctx context.Context, userID string) ([]*Entry, error) {
	if userID == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, tenant_id, model_id, user_id, response, created_at, expires_at, scan_version
		 FROM cache_entries WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite list user: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite scan entry: %v", ErrUnavailable, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite list user: %v", ErrUnavailable, err)
	}
	return entries, nil
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite delete user: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite rows affected: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var createdAt, expiresAt int64
	if err := row.Scan(&e.Key, &e.TenantID, &e.ModelID, &e.UserID, &e.Response,
		&createdAt, &expiresAt, &e.ScanVersion); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, createdAt)
	e.ExpiresAt = time.Unix(0, expiresAt)
	return &e, nil
}
