package observability

import (
	"context"
	"time"
)

// Hook is the base interface for all observability hooks.
// Implementations can emit events to DataDog, New Relic, OpenTelemetry, etc.
type Hook interface {
	// Name returns the hook's identifier for logging/debugging
	Name() string
}

// SyncHook receives events during reconciliation with the billing provider.
type SyncHook interface {
	Hook

	// OnSyncStarted is called when a tenant reconcile begins.
	OnSyncStarted(ctx context.Context, event SyncStartedEvent)

	// OnSyncCompleted is called when a tenant reconcile succeeds or fails.
	OnSyncCompleted(ctx context.Context, event SyncCompletedEvent)

	// OnBatchCompleted is called after a scheduler pass over stale records.
	OnBatchCompleted(ctx context.Context, event BatchCompletedEvent)
}

// LifecycleHook receives events when subscription state changes.
type LifecycleHook interface {
	Hook

	// OnStatusTransition is called when a record's stored status changes.
	OnStatusTransition(ctx context.Context, event StatusTransitionEvent)

	// OnRenewalDue is called when a subscription enters its renewal window.
	OnRenewalDue(ctx context.Context, event RenewalDueEvent)
}

// ===============================================
// Event Types
// ===============================================

// SyncStartedEvent is emitted when a tenant reconcile begins.
type SyncStartedEvent struct {
	Timestamp time.Time
	TenantID  string
	Trigger   string // "scheduler", "login", "webhook", "manual", "read_through"
}

// SyncCompletedEvent is emitted when a tenant reconcile finishes.
type SyncCompletedEvent struct {
	Timestamp   time.Time
	TenantID    string
	Trigger     string
	Success     bool
	ErrorReason string // Set if Success=false
	Duration    time.Duration
	OldStatus   string
	NewStatus   string
}

// BatchCompletedEvent is emitted after a scheduler pass.
type BatchCompletedEvent struct {
	Timestamp time.Time
	Picked    int // Stale records selected for this pass
	Synced    int
	Failed    int
	Duration  time.Duration
}

// StatusTransitionEvent is emitted when a stored status changes.
type StatusTransitionEvent struct {
	Timestamp time.Time
	TenantID  string
	From      string
	To        string
	Source    string // "sync", "webhook", "decay", "trial", "cancel"
}

// RenewalDueEvent is emitted when a subscription approaches its period end.
type RenewalDueEvent struct {
	Timestamp time.Time
	TenantID  string
	EndsAt    time.Time
	DaysLeft  int
}
