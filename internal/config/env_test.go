package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "SUBSYNC_SERVER_ADDRESS overrides default",
			envVars: map[string]string{
				"SUBSYNC_SERVER_ADDRESS": ":3000",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address != ":3000" {
					t.Errorf("Expected :3000, got %s", cfg.Server.Address)
				}
			},
		},
		{
			name: "SUBSYNC_ROUTE_PREFIX is normalized",
			envVars: map[string]string{
				"SUBSYNC_ROUTE_PREFIX": "api/",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.RoutePrefix != "/api" {
					t.Errorf("Expected /api, got %s", cfg.Server.RoutePrefix)
				}
			},
		},
		{
			name: "billing secrets from env",
			envVars: map[string]string{
				"SUBSYNC_BILLING_SECRET_KEY":     "sk_test_abc",
				"SUBSYNC_BILLING_WEBHOOK_SECRET": "whsec_abc",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Billing.SecretKey != "sk_test_abc" || cfg.Billing.WebhookSecret != "whsec_abc" {
					t.Errorf("billing = %+v", cfg.Billing)
				}
			},
		},
		{
			name: "sync durations from env",
			envVars: map[string]string{
				"SUBSYNC_SYNC_STALE_AFTER":      "30m",
				"SUBSYNC_SYNC_INTER_CALL_DELAY": "250ms",
				"SUBSYNC_SYNC_BATCH_LIMIT":      "10",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Sync.StaleAfter.Duration != 30*time.Minute {
					t.Errorf("stale_after = %v", cfg.Sync.StaleAfter.Duration)
				}
				if cfg.Sync.InterCallDelay.Duration != 250*time.Millisecond {
					t.Errorf("inter_call_delay = %v", cfg.Sync.InterCallDelay.Duration)
				}
				if cfg.Sync.BatchLimit != 10 {
					t.Errorf("batch_limit = %d", cfg.Sync.BatchLimit)
				}
			},
		},
		{
			name: "invalid duration keeps default",
			envVars: map[string]string{
				"SUBSYNC_CACHE_TTL": "not-a-duration",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Cache.TTL.Duration != 5*time.Minute {
					t.Errorf("cache.ttl = %v, want default 5m", cfg.Cache.TTL.Duration)
				}
			},
		},
		{
			name: "circuit breaker toggle",
			envVars: map[string]string{
				"SUBSYNC_CIRCUIT_BREAKER_ENABLED": "false",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.CircuitBreaker.Enabled {
					t.Error("circuit breaker should be disabled")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}
