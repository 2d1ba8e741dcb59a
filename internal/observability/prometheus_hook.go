package observability

import (
	"context"

	"github.com/tidybook/subsync/internal/metrics"
)

// PrometheusHook adapts the existing Prometheus metrics to the hook interface.
// This maintains backward compatibility while allowing new hooks to be added.
type PrometheusHook struct {
	metrics *metrics.Metrics
}

// NewPrometheusHook creates a hook that emits events to Prometheus metrics.
func NewPrometheusHook(m *metrics.Metrics) *PrometheusHook {
	return &PrometheusHook{metrics: m}
}

func (h *PrometheusHook) Name() string {
	return "prometheus"
}

// ===============================================
// SyncHook Implementation
// ===============================================

func (h *PrometheusHook) OnSyncStarted(ctx context.Context, event SyncStartedEvent) {
	// Prometheus doesn't track "started" events separately - only completions
}

func (h *PrometheusHook) OnSyncCompleted(ctx context.Context, event SyncCompletedEvent) {
	var err error
	if !event.Success {
		err = &syncError{reason: event.ErrorReason}
	}
	h.metrics.ObserveSync(event.Trigger, event.Duration, err)
}

func (h *PrometheusHook) OnBatchCompleted(ctx context.Context, event BatchCompletedEvent) {
	h.metrics.ObserveBatch(event.Picked)
}

// ===============================================
// LifecycleHook Implementation
// ===============================================

func (h *PrometheusHook) OnStatusTransition(ctx context.Context, event StatusTransitionEvent) {
	h.metrics.ObserveTransition(event.From, event.To)
}

func (h *PrometheusHook) OnRenewalDue(ctx context.Context, event RenewalDueEvent) {
	// Renewal windows are derived from stored state, not counted separately
}

// syncError is a minimal error type for Prometheus hook.
type syncError struct {
	reason string
}

func (e *syncError) Error() string {
	return e.reason
}
