// Package notify delivers subscription lifecycle events to a host-provided
// HTTP endpoint. Hosts that embed the engine can react to status changes
// (gate features, send emails) without polling the status API.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Notifier delivers subscription events to the configured endpoint.
type Notifier interface {
	StatusChanged(ctx context.Context, event StatusChangedEvent)
	RenewalDue(ctx context.Context, event RenewalDueEvent)
}

// NoopNotifier ignores all events.
type NoopNotifier struct{}

func (NoopNotifier) StatusChanged(context.Context, StatusChangedEvent) {}
func (NoopNotifier) RenewalDue(context.Context, RenewalDueEvent)       {}

// StatusChangedEvent describes a stored status transition.
// EventID is the idempotency key: consumers MUST use it to dedupe, the same
// event is re-sent with the same id on delivery retries.
type StatusChangedEvent struct {
	EventID        string    `json:"eventId"`
	EventType      string    `json:"eventType"` // Always "subscription.status_changed"
	EventTimestamp time.Time `json:"eventTimestamp"`

	TenantID string `json:"tenantId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Source   string `json:"source"` // "sync", "webhook", "decay", "trial", "cancel"
}

// RenewalDueEvent describes a subscription approaching its period end.
type RenewalDueEvent struct {
	EventID        string    `json:"eventId"`
	EventType      string    `json:"eventType"` // Always "subscription.renewal_due"
	EventTimestamp time.Time `json:"eventTimestamp"`

	TenantID string    `json:"tenantId"`
	EndsAt   time.Time `json:"endsAt"`
	DaysLeft int       `json:"daysLeft"`
}

// generateEventID creates a unique event identifier.
// Format: "evt_" + 24 hex characters.
func generateEventID() string {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	return "evt_" + hex.EncodeToString(randomBytes)
}

func prepareEventFields(eventID, eventType *string, eventTimestamp *time.Time, defaultType string) {
	if *eventID == "" {
		*eventID = generateEventID()
	}
	if *eventType == "" {
		*eventType = defaultType
	}
	if eventTimestamp.IsZero() {
		*eventTimestamp = time.Now().UTC()
	}
}

// PrepareStatusChanged fills the idempotency fields. An EventID already set
// is preserved so retries reuse it.
func PrepareStatusChanged(event *StatusChangedEvent) {
	prepareEventFields(&event.EventID, &event.EventType, &event.EventTimestamp, "subscription.status_changed")
}

// PrepareRenewalDue fills the idempotency fields. An EventID already set is
// preserved so retries reuse it.
func PrepareRenewalDue(event *RenewalDueEvent) {
	prepareEventFields(&event.EventID, &event.EventType, &event.EventTimestamp, "subscription.renewal_due")
}
