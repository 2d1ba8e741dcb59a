package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the subscription sync service.
type Metrics struct {
	// Reconciliation metrics
	SyncsTotal        *prometheus.CounterVec
	SyncFailuresTotal *prometheus.CounterVec
	SyncDuration      *prometheus.HistogramVec
	SyncBatchSize     prometheus.Histogram

	// Billing provider call metrics
	ProviderCallsTotal  *prometheus.CounterVec
	ProviderCallErrors  *prometheus.CounterVec
	ProviderCallLatency *prometheus.HistogramVec

	// Status mapping metrics
	MappingFallbacksTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Lifecycle metrics
	StatusTransitionsTotal *prometheus.CounterVec
	RecordsByStatus        *prometheus.GaugeVec

	// Outbound notification metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		SyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_syncs_total",
				Help: "Total number of reconcile attempts",
			},
			[]string{"trigger"},
		),
		SyncFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_sync_failures_total",
				Help: "Total number of failed reconciles",
			},
			[]string{"trigger"},
		),
		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subsync_sync_duration_seconds",
				Help:    "Time taken to reconcile one tenant (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"trigger"},
		),
		SyncBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subsync_sync_batch_size",
				Help:    "Number of stale records picked up per scheduler pass",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),

		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_provider_calls_total",
				Help: "Total number of billing provider API calls",
			},
			[]string{"operation"},
		),
		ProviderCallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_provider_call_errors_total",
				Help: "Total number of billing provider API errors",
			},
			[]string{"operation", "error_type"},
		),
		ProviderCallLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subsync_provider_call_duration_seconds",
				Help:    "Duration of billing provider API calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),

		MappingFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_mapping_fallbacks_total",
				Help: "Provider statuses that fell through to the fail-open default",
			},
			[]string{"provider_status"},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subsync_cache_hits_total",
				Help: "Status cache hits",
			},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subsync_cache_misses_total",
				Help: "Status cache misses",
			},
		),

		StatusTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_status_transitions_total",
				Help: "Subscription status transitions written to the store",
			},
			[]string{"from", "to"},
		),
		RecordsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subsync_records_by_status",
				Help: "Current number of subscription records per stored status",
			},
			[]string{"status"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_notifications_total",
				Help: "Outbound status notifications by event type and delivery outcome",
			},
			[]string{"event_type", "status"},
		),
		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subsync_notification_duration_seconds",
				Help:    "Total delivery time for outbound notifications including retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"event_type"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subsync_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type", "identifier"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subsync_db_query_duration_seconds",
				Help:    "Database query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		DBConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "subsync_db_connections_active",
				Help: "Number of active database connections",
			},
		),
	}
}

// ObserveSync records a reconcile attempt and its outcome.
func (m *Metrics) ObserveSync(trigger string, duration time.Duration, err error) {
	m.SyncsTotal.WithLabelValues(trigger).Inc()
	m.SyncDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	if err != nil {
		m.SyncFailuresTotal.WithLabelValues(trigger).Inc()
	}
}

// ObserveBatch records the size of a scheduler pass.
func (m *Metrics) ObserveBatch(size int) {
	m.SyncBatchSize.Observe(float64(size))
}

// ObserveProviderCall records a billing provider API call.
func (m *Metrics) ObserveProviderCall(operation string, duration time.Duration, err error) {
	m.ProviderCallsTotal.WithLabelValues(operation).Inc()
	m.ProviderCallLatency.WithLabelValues(operation).Observe(duration.Seconds())

	if err != nil {
		errorType := "other"
		if errStr := err.Error(); errStr != "" {
			switch {
			case contains(errStr, "timeout"):
				errorType = "timeout"
			case contains(errStr, "rate limit"):
				errorType = "rate_limit"
			case contains(errStr, "connection"):
				errorType = "connection"
			case contains(errStr, "not found"):
				errorType = "not_found"
			}
		}
		m.ProviderCallErrors.WithLabelValues(operation, errorType).Inc()
	}
}

// ObserveMappingFallback records a provider status that was not recognized.
func (m *Metrics) ObserveMappingFallback(providerStatus string) {
	m.MappingFallbacksTotal.WithLabelValues(providerStatus).Inc()
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// ObserveTransition records a status change written to the store.
func (m *Metrics) ObserveTransition(from, to string) {
	m.StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// SetStatusCount updates the per-status record gauge.
func (m *Metrics) SetStatusCount(status string, n int) {
	m.RecordsByStatus.WithLabelValues(status).Set(float64(n))
}

// ObserveNotification records an outbound notification delivery attempt
// sequence (one observation per event, not per retry).
func (m *Metrics) ObserveNotification(eventType, status string, duration time.Duration) {
	m.NotificationsTotal.WithLabelValues(eventType, status).Inc()
	m.NotificationDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}

// ObserveDBQuery records a database query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && s[:len(substr)] == substr ||
		len(s) > len(substr) && contains(s[1:], substr)
}
