package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	// Apply defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Billing.Mode == "" {
		c.Billing.Mode = "test"
	}
	if c.Billing.TrialDays <= 0 {
		c.Billing.TrialDays = 14
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL.Duration <= 0 {
		c.Cache.TTL = Duration{Duration: 5 * time.Minute}
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "subsync:status:"
	}
	if c.Sync.Interval.Duration <= 0 {
		c.Sync.Interval = Duration{Duration: time.Hour}
	}
	if c.Sync.StaleAfter.Duration <= 0 {
		c.Sync.StaleAfter = Duration{Duration: time.Hour}
	}
	if c.Sync.BatchLimit <= 0 {
		c.Sync.BatchLimit = 50
	}
	if c.Sync.InterCallDelay.Duration <= 0 {
		c.Sync.InterCallDelay = Duration{Duration: 100 * time.Millisecond}
	}
	if c.Sync.LoginDelay.Duration <= 0 {
		c.Sync.LoginDelay = Duration{Duration: 30 * time.Second}
	}
	if c.Sync.RenewalLead.Duration <= 0 {
		c.Sync.RenewalLead = Duration{Duration: 48 * time.Hour}
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			errs = append(errs, "store.postgres_url is required when store.backend is 'postgres'")
		}
	case "mongodb":
		if c.Store.MongoDBURL == "" {
			errs = append(errs, "store.mongodb_url is required when store.backend is 'mongodb'")
		}
		if c.Store.MongoDBDatabase == "" {
			errs = append(errs, "store.mongodb_database is required when store.backend is 'mongodb'")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not supported (memory, postgres, mongodb)", c.Store.Backend))
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required when cache.backend is 'redis'")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend %q is not supported (memory, redis)", c.Cache.Backend))
	}

	switch c.Billing.Mode {
	case "live", "test":
	default:
		errs = append(errs, fmt.Sprintf("billing.mode %q is not supported (live, test)", c.Billing.Mode))
	}
	if c.Billing.Mode == "live" && c.Billing.SecretKey == "" {
		errs = append(errs, "billing.secret_key is required in live mode")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
