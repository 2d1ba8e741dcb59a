package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Billing        BillingConfig        `yaml:"billing"`
	Store          StoreConfig          `yaml:"store"`
	Cache          CacheConfig          `yaml:"cache"`
	Sync           SyncConfig           `yaml:"sync"`
	Notify         NotifyConfig         `yaml:"notify"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`        // Optional prefix for all routes (e.g., "/api")
	AdminAPIKey        string   `yaml:"admin_api_key"`       // Protects /metrics and POST /sync/run (empty disables protection)
}

// BillingConfig holds billing provider (Stripe) configuration.
type BillingConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	PriceID       string `yaml:"price_id"`   // Recurring price used for MRR estimation
	TrialDays     int    `yaml:"trial_days"` // Trial length granted at signup (default: 14)
	Mode          string `yaml:"mode"`       // live | test
}

// StoreConfig holds subscription store backend configuration.
type StoreConfig struct {
	Backend         string             `yaml:"backend"`          // "memory", "postgres", or "mongodb"
	PostgresURL     string             `yaml:"postgres_url"`     // PostgreSQL connection string
	MongoDBURL      string             `yaml:"mongodb_url"`      // MongoDB connection string
	MongoDBDatabase string             `yaml:"mongodb_database"` // MongoDB database name
	TableName       string             `yaml:"table_name"`       // Custom table/collection name
	PostgresPool    PostgresPoolConfig `yaml:"postgres_pool"`    // PostgreSQL connection pool settings
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (default: 25)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (default: 5)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (default: 5m)
}

// CacheConfig holds status cache configuration.
type CacheConfig struct {
	Backend       string   `yaml:"backend"`        // "memory" or "redis"
	TTL           Duration `yaml:"ttl"`            // Snapshot freshness window (default: 5m)
	RedisAddr     string   `yaml:"redis_addr"`     // host:port for the redis backend
	RedisPassword string   `yaml:"redis_password"` //
	RedisDB       int      `yaml:"redis_db"`       //
	Prefix        string   `yaml:"prefix"`         // Key prefix (default: "subsync:status:")
}

// SyncConfig holds background reconciliation configuration.
type SyncConfig struct {
	Interval       Duration `yaml:"interval"`         // How often the scheduler runs (default: 1h)
	StaleAfter     Duration `yaml:"stale_after"`      // Records older than this are re-synced (default: 1h)
	BatchLimit     int      `yaml:"batch_limit"`      // Max records per scheduler pass (default: 50)
	InterCallDelay Duration `yaml:"inter_call_delay"` // Pause between provider calls in a batch (default: 100ms)
	LoginDelay     Duration `yaml:"login_delay"`      // Deferral before a login-triggered sync (default: 30s)
	RenewalLead    Duration `yaml:"renewal_lead"`     // How far ahead renewal-due events fire (default: 48h)
}

// NotifyConfig holds outbound status notification configuration. When a
// URL is set, subscription status changes and renewal-due events are POSTed
// to it as JSON.
type NotifyConfig struct {
	URL     string            `yaml:"url"`     // Host endpoint receiving events (empty disables notifications)
	Headers map[string]string `yaml:"headers"` // Extra headers sent with every notification (auth tokens etc.)
	Timeout Duration          `yaml:"timeout"` // Per-attempt timeout (default: 10s)
	Retry   NotifyRetryConfig `yaml:"retry"`   // Delivery retry behaviour
}

// NotifyRetryConfig controls notification delivery retries.
type NotifyRetryConfig struct {
	Enabled         bool     `yaml:"enabled"`          // Retry failed deliveries (default: true)
	MaxAttempts     int      `yaml:"max_attempts"`     // Attempts before giving up (default: 5)
	InitialInterval Duration `yaml:"initial_interval"` // First backoff interval (default: 1s)
	MaxInterval     Duration `yaml:"max_interval"`     // Backoff cap (default: 5m)
	Multiplier      float64  `yaml:"multiplier"`       // Backoff multiplier (default: 2.0)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// RateLimitConfig holds rate limiting configuration.
// Provides multi-tier rate limiting to prevent spam while allowing legitimate use.
type RateLimitConfig struct {
	// Global rate limiting (across all tenants)
	GlobalEnabled bool     `yaml:"global_enabled"` // Enable global rate limiting
	GlobalLimit   int      `yaml:"global_limit"`   // Requests allowed per global window
	GlobalWindow  Duration `yaml:"global_window"`  // Time window for global limit

	// Per-tenant rate limiting (identified by X-Tenant-ID header)
	PerTenantEnabled bool     `yaml:"per_tenant_enabled"` // Enable per-tenant rate limiting
	PerTenantLimit   int      `yaml:"per_tenant_limit"`   // Requests allowed per tenant per window
	PerTenantWindow  Duration `yaml:"per_tenant_window"`  // Time window for per-tenant limit

	// Per-IP rate limiting (fallback when tenant not identified)
	PerIPEnabled bool     `yaml:"per_ip_enabled"` // Enable per-IP rate limiting
	PerIPLimit   int      `yaml:"per_ip_limit"`   // Requests allowed per IP per window
	PerIPWindow  Duration `yaml:"per_ip_window"`  // Time window for per-IP limit
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
// Prevents cascading failures by failing fast when the billing provider is degraded.
type CircuitBreakerConfig struct {
	Enabled    bool                 `yaml:"enabled"`     // Enable circuit breakers (default: true)
	BillingAPI BreakerServiceConfig `yaml:"billing_api"` // Billing provider circuit breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
