package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use SUBSYNC_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "SUBSYNC_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "SUBSYNC_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminAPIKey, "SUBSYNC_ADMIN_API_KEY")

	// Normalize route prefix: ensure it starts with / and doesn't end with /
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "SUBSYNC_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "SUBSYNC_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "SUBSYNC_ENVIRONMENT")

	// Billing config
	setIfEnv(&c.Billing.SecretKey, "SUBSYNC_BILLING_SECRET_KEY")
	setIfEnv(&c.Billing.WebhookSecret, "SUBSYNC_BILLING_WEBHOOK_SECRET")
	setIfEnv(&c.Billing.PriceID, "SUBSYNC_BILLING_PRICE_ID")
	setIntIfEnv(&c.Billing.TrialDays, "SUBSYNC_BILLING_TRIAL_DAYS")
	setIfEnv(&c.Billing.Mode, "SUBSYNC_BILLING_MODE")

	// Store config
	setIfEnv(&c.Store.Backend, "SUBSYNC_STORE_BACKEND")
	setIfEnv(&c.Store.PostgresURL, "SUBSYNC_STORE_POSTGRES_URL")
	setIfEnv(&c.Store.MongoDBURL, "SUBSYNC_STORE_MONGODB_URL")
	setIfEnv(&c.Store.MongoDBDatabase, "SUBSYNC_STORE_MONGODB_DATABASE")
	setIfEnv(&c.Store.TableName, "SUBSYNC_STORE_TABLE_NAME")

	// Cache config
	setIfEnv(&c.Cache.Backend, "SUBSYNC_CACHE_BACKEND")
	setDurationIfEnv(&c.Cache.TTL, "SUBSYNC_CACHE_TTL")
	setIfEnv(&c.Cache.RedisAddr, "SUBSYNC_CACHE_REDIS_ADDR")
	setIfEnv(&c.Cache.RedisPassword, "SUBSYNC_CACHE_REDIS_PASSWORD")
	setIntIfEnv(&c.Cache.RedisDB, "SUBSYNC_CACHE_REDIS_DB")
	setIfEnv(&c.Cache.Prefix, "SUBSYNC_CACHE_PREFIX")

	// Sync config
	setDurationIfEnv(&c.Sync.Interval, "SUBSYNC_SYNC_INTERVAL")
	setDurationIfEnv(&c.Sync.StaleAfter, "SUBSYNC_SYNC_STALE_AFTER")
	setIntIfEnv(&c.Sync.BatchLimit, "SUBSYNC_SYNC_BATCH_LIMIT")
	setDurationIfEnv(&c.Sync.InterCallDelay, "SUBSYNC_SYNC_INTER_CALL_DELAY")
	setDurationIfEnv(&c.Sync.LoginDelay, "SUBSYNC_SYNC_LOGIN_DELAY")
	setDurationIfEnv(&c.Sync.RenewalLead, "SUBSYNC_SYNC_RENEWAL_LEAD")

	// Notify config
	setIfEnv(&c.Notify.URL, "SUBSYNC_NOTIFY_URL")
	setDurationIfEnv(&c.Notify.Timeout, "SUBSYNC_NOTIFY_TIMEOUT")
	setBoolIfEnv(&c.Notify.Retry.Enabled, "SUBSYNC_NOTIFY_RETRY_ENABLED")
	setIntIfEnv(&c.Notify.Retry.MaxAttempts, "SUBSYNC_NOTIFY_RETRY_MAX_ATTEMPTS")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "SUBSYNC_RATE_LIMIT_GLOBAL_ENABLED")
	setIntIfEnv(&c.RateLimit.GlobalLimit, "SUBSYNC_RATE_LIMIT_GLOBAL_LIMIT")
	setBoolIfEnv(&c.RateLimit.PerTenantEnabled, "SUBSYNC_RATE_LIMIT_PER_TENANT_ENABLED")
	setIntIfEnv(&c.RateLimit.PerTenantLimit, "SUBSYNC_RATE_LIMIT_PER_TENANT_LIMIT")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "SUBSYNC_RATE_LIMIT_PER_IP_ENABLED")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "SUBSYNC_RATE_LIMIT_PER_IP_LIMIT")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "SUBSYNC_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}
