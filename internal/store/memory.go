package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the ephemeral tier: an in-process mirror of hot entries
// for zero-latency same-session repeats. Best-effort by contract — it
// drops oldest entries under pressure and is never treated as
// authoritative; every hit served from it is still re-scanned by the
// gate's safety net.
type MemoryStore struct {
	mu              sync.RWMutex
	items           map[string]*Entry
	maxEntries      int
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryStore creates the ephemeral tier. maxEntries bounds memory
// (<=0 uses 1024); cleanupInterval drives expiry collection (<=0 uses 5m).
func NewMemoryStore(maxEntries int, cleanupInterval time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	s := &MemoryStore{
		items:           make(map[string]*Entry),
		maxEntries:      maxEntries,
		stopCleanup:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	//background cleanup routine
	go s.cleanupExpired()

	return s
}

func (s *MemoryStore) Get(_ context.Context, tenantID, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if entry.TenantID != tenantID {
		return nil, ErrTenantIsolation
	}

	now := time.Now()
	if entry.Expired(now) {
		s.mu.Lock()
		if e, exists := s.items[key]; exists && e.Expired(now) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	cp := *entry // decouple from caller's value

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[cp.Key]; !exists && len(s.items) >= s.maxEntries {
		s.dropOldestLocked()
	}
	s.items[cp.Key] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, _ string, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for k, e := range s.items {
		if e.Expired(now) {
			delete(s.items, k)
			evicted++
		}
	}
	return evicted, nil
}

func (s *MemoryStore) TrimTenant(_ context.Context, tenantID string, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, e := range s.items {
		if e.TenantID == tenantID {
			keys = append(keys, k)
		}
	}
	if len(keys) <= max {
		return 0, nil
	}

	// Oldest-first beyond the cap.
	evicted := 0
	for len(keys)-evicted > max {
		oldest := ""
		for _, k := range keys {
			e, ok := s.items[k]
			if !ok {
				continue
			}
			if oldest == "" || e.CreatedAt.Before(s.items[oldest].CreatedAt) {
				oldest = k
			}
		}
		if oldest == "" {
			break
		}
		delete(s.items, oldest)
		evicted++
	}
	return evicted, nil
}

func (s *MemoryStore) Tenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var tenants []string
	for _, e := range s.items {
		if _, ok := seen[e.TenantID]; !ok {
			seen[e.TenantID] = struct{}{}
			tenants = append(tenants, e.TenantID)
		}
	}
	return tenants, nil
}

func (s *MemoryStore) ListUser(_ context.Context, userID string) ([]*Entry, error) {
	if userID == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*Entry
	for _, e := range s.items {
		if e.UserID == userID {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k, e := range s.items {
		if e.UserID == userID {
			delete(s.items, k)
			deleted++
		}
	}
	return deleted, nil
}

// dropOldestLocked evicts the entry with the earliest CreatedAt. Caller
// holds the write lock.
func (s *MemoryStore) dropOldestLocked() {
	oldest := ""
	for k, e := range s.items {
		if oldest == "" || e.CreatedAt.Before(s.items[oldest].CreatedAt) {
			oldest = k
		}
	}
	if oldest != "" {
		delete(s.items, oldest)
	}
}

// cleanupExpired runs periodically to remove expired entries.
func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.DeleteExpired(context.Background(), time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Call this on shutdown or in tests.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Len returns the number of items currently in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes all items. Useful for tests or manual resets.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.items = make(map[string]*Entry)
	s.mu.Unlock()
}
