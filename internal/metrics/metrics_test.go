package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("metrics collector should not be nil")
	}

	if m.SyncsTotal == nil {
		t.Error("SyncsTotal should be initialized")
	}
	if m.SyncFailuresTotal == nil {
		t.Error("SyncFailuresTotal should be initialized")
	}
	if m.ProviderCallsTotal == nil {
		t.Error("ProviderCallsTotal should be initialized")
	}
	if m.MappingFallbacksTotal == nil {
		t.Error("MappingFallbacksTotal should be initialized")
	}
	if m.CacheHitsTotal == nil {
		t.Error("CacheHitsTotal should be initialized")
	}
	if m.RecordsByStatus == nil {
		t.Error("RecordsByStatus should be initialized")
	}
}

func TestObserveSync(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveSync("scheduler", 200*time.Millisecond, nil)
	m.ObserveSync("scheduler", 150*time.Millisecond, &testError{msg: "provider down"})

	total := promtest.ToFloat64(m.SyncsTotal.WithLabelValues("scheduler"))
	if total != 2 {
		t.Errorf("expected 2 sync attempts, got %.0f", total)
	}

	failures := promtest.ToFloat64(m.SyncFailuresTotal.WithLabelValues("scheduler"))
	if failures != 1 {
		t.Errorf("expected 1 sync failure, got %.0f", failures)
	}
}

func TestObserveProviderCall(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantErrorType string
	}{
		{name: "success", err: nil},
		{name: "connection error", err: &testError{msg: "connection reset"}, wantErrorType: "connection"},
		{name: "timeout error", err: &testError{msg: "timeout waiting for response"}, wantErrorType: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := prometheus.NewRegistry()
			m := New(registry)

			m.ObserveProviderCall("fetch_subscription", 100*time.Millisecond, tt.err)

			calls := promtest.ToFloat64(m.ProviderCallsTotal.WithLabelValues("fetch_subscription"))
			if calls != 1 {
				t.Errorf("expected 1 provider call, got %.0f", calls)
			}

			if tt.err != nil {
				errs := promtest.ToFloat64(m.ProviderCallErrors.WithLabelValues("fetch_subscription", tt.wantErrorType))
				if errs != 1 {
					t.Errorf("expected 1 %s error, got %.0f", tt.wantErrorType, errs)
				}
			}
		})
	}
}

func TestObserveMappingFallback(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveMappingFallback("paused")

	count := promtest.ToFloat64(m.MappingFallbacksTotal.WithLabelValues("paused"))
	if count != 1 {
		t.Errorf("expected 1 mapping fallback, got %.0f", count)
	}
}

func TestObserveCache(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveCache(true)
	m.ObserveCache(true)
	m.ObserveCache(false)

	hits := promtest.ToFloat64(m.CacheHitsTotal)
	if hits != 2 {
		t.Errorf("expected 2 cache hits, got %.0f", hits)
	}
	misses := promtest.ToFloat64(m.CacheMissesTotal)
	if misses != 1 {
		t.Errorf("expected 1 cache miss, got %.0f", misses)
	}
}

func TestObserveTransitionAndGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveTransition("trial", "expired_trial")
	count := promtest.ToFloat64(m.StatusTransitionsTotal.WithLabelValues("trial", "expired_trial"))
	if count != 1 {
		t.Errorf("expected 1 transition, got %.0f", count)
	}

	m.SetStatusCount("active", 42)
	gauge := promtest.ToFloat64(m.RecordsByStatus.WithLabelValues("active"))
	if gauge != 42 {
		t.Errorf("expected gauge 42, got %.0f", gauge)
	}
}

func TestObserveRateLimit(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRateLimit("per_tenant", "tenant123")

	hits := promtest.ToFloat64(m.RateLimitHitsTotal.WithLabelValues("per_tenant", "tenant123"))
	if hits != 1 {
		t.Errorf("expected 1 rate limit hit, got %.0f", hits)
	}
}

func TestObserveDBQuery(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveDBQuery("upsert", "postgres", 50*time.Millisecond)

	// For histograms, verify the metric exists and was created successfully
	if m.DBQueryDuration == nil {
		t.Error("DBQueryDuration should be initialized")
	}
}

// testError is a simple error type for testing
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
