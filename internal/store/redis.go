package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the alternate durable tier for deployments that already
// run Redis. Layout:
//
//	<prefix>:entry:<key>   entry JSON, expired by Redis at ExpiresAt
//	<prefix>:tenant:<id>   ZSET of keys scored by created_at (trim order)
//	<prefix>:user:<id>     SET of keys (data-subject requests)
//	<prefix>:tenants       SET of known tenant ids
//
// Redis evicts entry values itself; DeleteExpired prunes the index
// structures and reports how many indexed entries turned out dead.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	prefix := config.Prefix
	if prefix == "" {
		prefix = "cachegate"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + ":entry:" + key }
func (s *RedisStore) tenantKey(id string) string { return s.prefix + ":tenant:" + id }
func (s *RedisStore) userKey(id string) string   { return s.prefix + ":user:" + id }
func (s *RedisStore) tenantsKey() string         { return s.prefix + ":tenants" }

func (s *RedisStore) Get(ctx context.Context, tenantID, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", ErrUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: redis decode entry: %v", ErrUnavailable, err)
	}
	if entry.TenantID != tenantID {
		return nil, fmt.Errorf("%w: entry %s held by tenant %s", ErrTenantIsolation, key, entry.TenantID)
	}
	if entry.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: redis encode entry: %v", ErrUnavailable, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(entry.Key), raw, time.Until(entry.ExpiresAt))
	pipe.ZAdd(ctx, s.tenantKey(entry.TenantID), redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: entry.Key,
	})
	pipe.SAdd(ctx, s.tenantsKey(), entry.TenantID)
	if entry.UserID != "" {
		pipe.SAdd(ctx, s.userKey(entry.UserID), entry.Key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis put: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.entryKey(key))
	pipe.ZRem(ctx, s.tenantKey(tenantID), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis delete: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tenants, err := s.Tenants(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, tenant := range tenants {
		keys, err := s.client.ZRange(ctx, s.tenantKey(tenant), 0, -1).Result()
		if err != nil {
			return evicted, fmt.Errorf("%w: redis zrange: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			entry, err := s.Get(ctx, tenant, key)
			if errors.Is(err, ErrNotFound) || (entry != nil && entry.Expired(now)) {
				if delErr := s.Delete(ctx, tenant, key); delErr != nil {
					return evicted, delErr
				}
				evicted++
				continue
			}
			if err != nil {
				return evicted, err
			}
		}
	}
	return evicted, nil
}

func (s *RedisStore) TrimTenant(ctx context.Context, tenantID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	count, err := s.client.ZCard(ctx, s.tenantKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis zcard: %v", ErrUnavailable, err)
	}
	if int(count) <= max {
		return 0, nil
	}

	// Oldest-first: lowest created_at scores sit at the front of the ZSET.
	excess := int(count) - max
	keys, err := s.client.ZRange(ctx, s.tenantKey(tenantID), 0, int64(excess-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis zrange: %v", ErrUnavailable, err)
	}

	evicted := 0
	for _, key := range keys {
		if err := s.Delete(ctx, tenantID, key); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

func (s *RedisStore) Tenants(ctx context.Context) ([]string, error) {
	tenants, err := s.client.SMembers(ctx, s.tenantsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis smembers: %v", ErrUnavailable, err)
	}
	return tenants, nil
}

func (s *RedisStore) ListUser(ctx context.Context, userID string) ([]*Entry, error) {
	if userID == "" {
		return nil, nil
	}

	keys, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis smembers: %v", ErrUnavailable, err)
	}

	now := time.Now()
	var entries []*Entry
	for _, key := range keys {
		raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Entry expired out from under its index; drop the stale member.
			_ = s.client.SRem(ctx, s.userKey(userID), key).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: redis get: %v", ErrUnavailable, err)
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: redis decode entry: %v", ErrUnavailable, err)
		}
		if entry.UserID != userID || entry.Expired(now) {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (s *RedisStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	entries, err := s.ListUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, entry := range entries {
		if err := s.Delete(ctx, entry.TenantID, entry.Key); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return deleted, fmt.Errorf("%w: redis del user index: %v", ErrUnavailable, err)
	}
	return deleted, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
