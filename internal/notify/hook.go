package notify

import (
	"context"

	"github.com/tidybook/subsync/internal/observability"
)

// Hook bridges lifecycle events onto a Notifier so hosts receive them over
// HTTP. Register it on the observability registry.
type Hook struct {
	notifier Notifier
}

// NewHook creates a lifecycle hook backed by the given notifier.
func NewHook(notifier Notifier) *Hook {
	return &Hook{notifier: notifier}
}

// Name identifies the hook in logs.
func (h *Hook) Name() string {
	return "notify"
}

// OnStatusTransition forwards a stored status change.
func (h *Hook) OnStatusTransition(ctx context.Context, event observability.StatusTransitionEvent) {
	h.notifier.StatusChanged(ctx, StatusChangedEvent{
		EventTimestamp: event.Timestamp.UTC(),
		TenantID:       event.TenantID,
		From:           event.From,
		To:             event.To,
		Source:         event.Source,
	})
}

// OnRenewalDue forwards a renewal reminder.
func (h *Hook) OnRenewalDue(ctx context.Context, event observability.RenewalDueEvent) {
	h.notifier.RenewalDue(ctx, RenewalDueEvent{
		EventTimestamp: event.Timestamp.UTC(),
		TenantID:       event.TenantID,
		EndsAt:         event.EndsAt,
		DaysLeft:       event.DaysLeft,
	})
}
