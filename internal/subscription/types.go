package subscription

import (
	"time"
)

// Status represents the access-granting state of a tenant's subscription.
type Status string

const (
	// StatusUnsubscribed indicates the tenant has no subscription record.
	StatusUnsubscribed Status = "unsubscribed"

	// StatusTrial indicates the tenant is in a free trial period.
	StatusTrial Status = "trial"

	// StatusActive indicates the subscription is paid up and grants access.
	StatusActive Status = "active"

	// StatusPastDue indicates a provider payment failed but the subscription
	// has not been cancelled yet.
	StatusPastDue Status = "past_due"

	// StatusUnpaid indicates the provider gave up collecting payment.
	StatusUnpaid Status = "unpaid"

	// StatusPending indicates checkout started but never completed.
	StatusPending Status = "pending"

	// StatusCancelled indicates the tenant cancelled; access persists until
	// the end of the period already paid for.
	StatusCancelled Status = "cancelled"

	// StatusExpired indicates the paid period (plus grace) ended without renewal.
	StatusExpired Status = "expired"

	// StatusExpiredTrial indicates the trial ended without conversion.
	StatusExpiredTrial Status = "expired_trial"
)

// SyncableStatuses are the stored statuses for which provider drift matters.
// Records in any other status are skipped by background reconciliation.
var SyncableStatuses = []Status{StatusActive, StatusTrial, StatusPastDue}

// AllStatuses lists every status a record can carry. Gauge publishers walk
// this list so a status whose count drops to zero reads zero, not its last
// published value.
var AllStatuses = []Status{
	StatusUnsubscribed,
	StatusTrial,
	StatusActive,
	StatusPastDue,
	StatusUnpaid,
	StatusPending,
	StatusCancelled,
	StatusExpired,
	StatusExpiredTrial,
}

// Record is the locally stored subscription state for a single tenant.
// Exactly one record exists per tenant; it is created once (typically at
// trial start) and only ever updated in place afterwards.
type Record struct {
	TenantID string `json:"tenantId"`
	Status   Status `json:"status"`

	// Billing-provider linkage; empty means "not yet linked to billing".
	ExternalCustomerID     string `json:"externalCustomerId,omitempty"`
	ExternalSubscriptionID string `json:"externalSubscriptionId,omitempty"`

	// TrialEndsAt is set only while Status is trial.
	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty"`

	// EndsAt marks the end of the currently paid or cancelled period.
	EndsAt *time.Time `json:"endsAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the staleness signal used by background sync.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Grants reports whether the status grants access to gated features.
// Past-due tenants keep access while the provider retries payment; they
// lose it only when the provider gives up (unpaid) or the period expires.
func (s Status) Grants() bool {
	switch s {
	case StatusActive, StatusTrial, StatusPastDue:
		return true
	}
	return false
}

// Linked reports whether the record is tied to a billing-provider subscription.
func (r Record) Linked() bool {
	return r.ExternalSubscriptionID != ""
}

// DaysUntilNextPayment returns the whole days left until the next renewal
// (or trial end for trialing tenants). Returns 0 once the deadline passed.
func (r Record) DaysUntilNextPayment(now time.Time) int {
	var deadline time.Time
	switch {
	case r.Status == StatusTrial && r.TrialEndsAt != nil:
		deadline = *r.TrialEndsAt
	case (r.Status == StatusActive || r.Status == StatusCancelled) && r.EndsAt != nil:
		deadline = *r.EndsAt
	default:
		return 0
	}
	if !now.Before(deadline) {
		return 0
	}
	return int(deadline.Sub(now).Hours() / 24)
}
