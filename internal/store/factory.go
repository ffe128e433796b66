package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend    string // "sqlite" or "redis"
	SQLitePath string
	Prefix     string
}

// NewDurable builds the durable tier for the configured backend.
// redisClient is only consulted for the redis backend.
func NewDurable(cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("store: redis backend selected but no client provided")
		}
		return NewRedisStore(redisClient, RedisConfig{Prefix: cfg.Prefix}), nil
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
