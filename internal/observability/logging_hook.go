package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggingHook logs all observability events using zerolog.
// Useful for debugging and development environments.
type LoggingHook struct {
	logger zerolog.Logger
}

// NewLoggingHook creates a hook that logs all events.
func NewLoggingHook(logger zerolog.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

// ===============================================
// SyncHook Implementation
// ===============================================

func (h *LoggingHook) OnSyncStarted(ctx context.Context, event SyncStartedEvent) {
	h.logger.Debug().
		Str("tenant_id", event.TenantID).
		Str("trigger", event.Trigger).
		Msg("sync started")
}

func (h *LoggingHook) OnSyncCompleted(ctx context.Context, event SyncCompletedEvent) {
	log := h.logger.Info()
	if !event.Success {
		log = h.logger.Warn().Str("error", event.ErrorReason)
	}

	log.Str("tenant_id", event.TenantID).
		Str("trigger", event.Trigger).
		Bool("success", event.Success).
		Dur("duration", event.Duration).
		Str("old_status", event.OldStatus).
		Str("new_status", event.NewStatus).
		Msg("sync completed")
}

func (h *LoggingHook) OnBatchCompleted(ctx context.Context, event BatchCompletedEvent) {
	h.logger.Info().
		Int("picked", event.Picked).
		Int("synced", event.Synced).
		Int("failed", event.Failed).
		Dur("duration", event.Duration).
		Msg("sync batch completed")
}

// ===============================================
// LifecycleHook Implementation
// ===============================================

func (h *LoggingHook) OnStatusTransition(ctx context.Context, event StatusTransitionEvent) {
	h.logger.Info().
		Str("tenant_id", event.TenantID).
		Str("from", event.From).
		Str("to", event.To).
		Str("source", event.Source).
		Msg("status transition")
}

func (h *LoggingHook) OnRenewalDue(ctx context.Context, event RenewalDueEvent) {
	h.logger.Info().
		Str("tenant_id", event.TenantID).
		Time("ends_at", event.EndsAt).
		Int("days_left", event.DaysLeft).
		Msg("renewal due")
}
