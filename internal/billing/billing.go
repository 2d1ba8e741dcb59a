// Package billing abstracts the external billing provider. The rest of the
// service talks to the Client interface; the Stripe implementation lives in
// stripe.go so tests can swap in a fake.
package billing

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the provider has no such object.
var ErrNotFound = errors.New("billing: object not found")

// ProviderSubscription is the provider-side view of a subscription,
// normalized to what reconciliation needs.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string // provider vocabulary, see subscription.MapProviderStatus
	CurrentPeriodEnd  time.Time
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool
}

// Price is the provider-side price attached to the subscription plan.
type Price struct {
	ID              string
	UnitAmountCents int64
	Currency        string
	Interval        string // "month", "year"
	IntervalCount   int
}

// Client is the outbound interface to the billing provider.
type Client interface {
	// FetchSubscription retrieves the live subscription state.
	FetchSubscription(ctx context.Context, subscriptionID string) (ProviderSubscription, error)

	// FetchPrice retrieves a recurring price, used for MRR estimation.
	FetchPrice(ctx context.Context, priceID string) (Price, error)

	// CreateCustomer registers a customer and returns its provider id.
	CreateCustomer(ctx context.Context, tenantID, email string) (string, error)

	// CancelSubscription cancels provider-side, at period end or immediately.
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
}
