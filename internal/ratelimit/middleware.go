package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/tenant"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global rate limiting (across all tenants)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-tenant rate limiting (identified by X-Tenant-ID header)
	PerTenantEnabled bool
	PerTenantLimit   int
	PerTenantWindow  time.Duration

	// Per-IP rate limiting (fallback when tenant not identified)
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// rateLimitResponse represents the JSON error response for rate limit exceeded.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns sensible default rate limits.
// These are generous limits designed to stop obvious spam while not restricting legitimate use.
func DefaultConfig() Config {
	return Config{
		// Global: 1000 req/min (16.6 req/sec) - prevents DoS
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  1 * time.Minute,

		// Per-tenant: 60 req/min (1 req/sec avg) - prevents a single tenant hammering the provider
		PerTenantEnabled: true,
		PerTenantLimit:   60,
		PerTenantWindow:  1 * time.Minute,

		// Per-IP: 120 req/min (2 req/sec avg) - fallback for anonymous requests
		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  1 * time.Minute,
	}
}

// createRateLimitHandler creates a standardized rate limit handler function.
// This eliminates duplication across global, per-tenant, and per-IP limiters.
func createRateLimitHandler(
	limitType string,
	windowSeconds int,
	extractIdentifier func(*http.Request) string,
	metricsCollector *metrics.Metrics,
) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract identifier for metrics (optional)
		identifier := "all"
		if extractIdentifier != nil {
			if id := extractIdentifier(r); id != "" {
				identifier = id
			}
		}

		// Record rate limit hit in metrics
		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType, identifier)
		}

		// Build response message based on limit type
		var message string
		switch limitType {
		case "global":
			message = "Global rate limit exceeded. Please try again later."
		case "per_tenant":
			if identifier != "" && identifier != "all" && identifier != tenant.DefaultTenantID {
				message = fmt.Sprintf("Rate limit exceeded for tenant %s. Please try again later.", identifier)
			} else {
				message = "Rate limit exceeded. Please try again later."
			}
		case "per_ip":
			message = "IP rate limit exceeded. Please try again later."
		default:
			message = "Rate limit exceeded. Please try again later."
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		}

		// Set headers and write response
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// GlobalLimiter creates a global rate limiter middleware.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(
			createRateLimitHandler(
				"global",
				int(cfg.GlobalWindow.Seconds()),
				nil, // No identifier extraction for global limiter
				cfg.Metrics,
			),
		),
	)
}

// TenantLimiter creates a per-tenant rate limiter middleware.
// It keys requests by the tenant ID extracted from the X-Tenant-ID header.
func TenantLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerTenantEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.PerTenantLimit,
		cfg.PerTenantWindow,
		httprate.WithKeyFuncs(tenantKeyExtractor),
		httprate.WithLimitHandler(
			createRateLimitHandler(
				"per_tenant",
				int(cfg.PerTenantWindow.Seconds()),
				extractTenantFromRequest,
				cfg.Metrics,
			),
		),
	)
}

// IPLimiter creates a per-IP rate limiter middleware (fallback).
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(
			createRateLimitHandler(
				"per_ip",
				int(cfg.PerIPWindow.Seconds()),
				func(r *http.Request) string { return r.RemoteAddr },
				cfg.Metrics,
			),
		),
	)
}

// tenantKeyExtractor is a httprate.KeyFunc that extracts the tenant ID from a request.
func tenantKeyExtractor(r *http.Request) (string, error) {
	id := extractTenantFromRequest(r)
	if id == "" {
		// Fall back to IP-based limiting
		return httprate.KeyByIP(r)
	}
	return "tenant:" + id, nil
}

// extractTenantFromRequest attempts to extract the tenant ID without consuming the body.
func extractTenantFromRequest(r *http.Request) string {
	// 1. Explicit X-Tenant-ID header (API clients managing multiple tenants)
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}

	// 2. Tenant extraction middleware may have run already
	if id := tenant.FromContext(r.Context()); id != tenant.DefaultTenantID {
		return id
	}

	// Anonymous requests fall back to IP-based limiting
	return ""
}
