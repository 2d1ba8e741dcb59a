package cache

import (
	"context"
	"errors"
	"time"

	"github.com/tidybook/subsync/internal/subscription"
)

// DefaultTTL is how long a cached status snapshot is considered fresh.
const DefaultTTL = 5 * time.Minute

// Entry is a cached status snapshot for one tenant.
type Entry struct {
	Record    subscription.Record `json:"record"`
	Effective subscription.Status `json:"effective"`
	FetchedAt time.Time           `json:"fetchedAt"`
}

// Cache stores per-tenant status snapshots with a TTL. A miss is reported
// via the boolean, not an error; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, tenantID string) (Entry, bool, error)
	Set(ctx context.Context, tenantID string, entry Entry) error
	Invalidate(ctx context.Context, tenantID string) error
	Close() error
}

// Config holds configuration for creating a cache.
type Config struct {
	Backend   string // "memory" or "redis"
	TTL       time.Duration
	RedisAddr string
	RedisPass string
	RedisDB   int
	Prefix    string
}

// New creates a cache based on configuration.
func New(cfg Config) (Cache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryCache(ttl), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis_addr required for redis backend")
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.Prefix, ttl)
	default:
		return nil, errors.New("unknown cache backend: " + cfg.Backend)
	}
}
