package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/config"
	"github.com/tidybook/subsync/internal/httputil"
	"github.com/tidybook/subsync/internal/metrics"
)

// RetryPolicy holds notification retry configuration.
type RetryPolicy struct {
	MaxAttempts     int           // Maximum delivery attempts (default: 5)
	InitialInterval time.Duration // Initial backoff interval (default: 1s)
	MaxInterval     time.Duration // Maximum backoff interval (default: 5m)
	Multiplier      float64       // Backoff multiplier (default: 2.0)
	Timeout         time.Duration // Per-attempt timeout (default: 10s)
}

// DefaultRetryPolicy returns sensible defaults for notification delivery.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     5 * time.Minute,
		Multiplier:      2.0,
		Timeout:         10 * time.Second,
	}
}

// retryPolicyFromConfig builds a RetryPolicy from config, filling gaps with
// defaults.
func retryPolicyFromConfig(cfg config.NotifyConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval.Duration > 0 {
		policy.InitialInterval = cfg.Retry.InitialInterval.Duration
	}
	if cfg.Retry.MaxInterval.Duration > 0 {
		policy.MaxInterval = cfg.Retry.MaxInterval.Duration
	}
	if cfg.Retry.Multiplier > 1 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Timeout.Duration > 0 {
		policy.Timeout = cfg.Timeout.Duration
	}
	return policy
}

// Client posts subscription events with exponential backoff retry.
type Client struct {
	cfg        config.NotifyConfig
	policy     RetryPolicy
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// Option customizes the notification client.
type Option func(*Client)

// WithLogger sets a custom logger for delivery logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryPolicy overrides the retry policy derived from config.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithMetrics sets the metrics collector for delivery observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient constructs a notification client. Returns a NoopNotifier when no
// endpoint is configured.
func NewClient(cfg config.NotifyConfig, opts ...Option) Notifier {
	if cfg.URL == "" {
		return NoopNotifier{}
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		cfg:        cfg,
		policy:     retryPolicyFromConfig(cfg),
		httpClient: httputil.NewClient(timeout),
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StatusChanged dispatches the status change asynchronously with retry.
// EventID is generated once and reused across all delivery attempts.
func (c *Client) StatusChanged(ctx context.Context, event StatusChangedEvent) {
	if c == nil || c.cfg.URL == "" {
		return
	}

	PrepareStatusChanged(&event)

	go func() {
		payload, err := json.Marshal(event)
		if err != nil {
			c.logger.Error().Err(err).Msg("notify: failed to serialize status event")
			return
		}
		if err := c.sendWithRetry(context.Background(), payload, event.EventType); err != nil {
			c.logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Str("tenant_id", event.TenantID).
				Msg("notify: status notification failed after all retries")
		}
	}()
}

// RenewalDue dispatches the renewal reminder asynchronously with retry.
func (c *Client) RenewalDue(ctx context.Context, event RenewalDueEvent) {
	if c == nil || c.cfg.URL == "" {
		return
	}

	PrepareRenewalDue(&event)

	go func() {
		payload, err := json.Marshal(event)
		if err != nil {
			c.logger.Error().Err(err).Msg("notify: failed to serialize renewal event")
			return
		}
		if err := c.sendWithRetry(context.Background(), payload, event.EventType); err != nil {
			c.logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Str("tenant_id", event.TenantID).
				Msg("notify: renewal notification failed after all retries")
		}
	}()
}

// sendWithRetry attempts delivery with exponential backoff.
func (c *Client) sendWithRetry(ctx context.Context, payload []byte, eventType string) error {
	var lastErr error
	interval := c.policy.InitialInterval
	startTime := time.Now()

	// Retries disabled: single attempt.
	if !c.cfg.Retry.Enabled {
		reqCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
		err := c.sendHTTP(reqCtx, payload)
		cancel()
		c.observe(eventType, err, time.Since(startTime))
		return err
	}

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
		err := c.sendHTTP(reqCtx, payload)
		cancel()

		if err == nil {
			c.observe(eventType, nil, time.Since(startTime))
			if attempt > 1 {
				c.logger.Info().
					Int("attempt", attempt).
					Str("event_type", eventType).
					Msg("notify: delivery succeeded after retry")
			}
			return nil
		}

		lastErr = err
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.policy.MaxAttempts).
			Str("event_type", eventType).
			Dur("next_retry", interval).
			Msg("notify: delivery attempt failed")

		// No sleep after the last attempt.
		if attempt < c.policy.MaxAttempts {
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * c.policy.Multiplier)
			if interval > c.policy.MaxInterval {
				interval = c.policy.MaxInterval
			}
		}
	}

	c.observe(eventType, lastErr, time.Since(startTime))
	return fmt.Errorf("notification failed after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func (c *Client) observe(eventType string, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	c.metrics.ObserveNotification(eventType, status, duration)
}

// sendHTTP performs the actual HTTP request.
func (c *Client) sendHTTP(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	contentType := c.cfg.Headers["Content-Type"]
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)

	for k, v := range c.cfg.Headers {
		if k == "" || strings.EqualFold(k, "content-type") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("received status %d from %s", resp.StatusCode, c.cfg.URL)
	}

	return nil
}
