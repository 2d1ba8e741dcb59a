package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/customer"
	"github.com/stripe/stripe-go/v72/price"
	stripesub "github.com/stripe/stripe-go/v72/sub"

	"github.com/tidybook/subsync/internal/circuitbreaker"
	"github.com/tidybook/subsync/internal/config"
)

// StripeClient implements Client against the Stripe API. All outbound calls
// go through the billing circuit breaker.
type StripeClient struct {
	cfg      config.BillingConfig
	breakers *circuitbreaker.Manager
}

// NewStripeClient sets up stripe-go with the provided credentials.
func NewStripeClient(cfg config.BillingConfig, breakers *circuitbreaker.Manager) *StripeClient {
	stripeapi.Key = cfg.SecretKey
	return &StripeClient{cfg: cfg, breakers: breakers}
}

func (c *StripeClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	if c.breakers == nil {
		return fn()
	}
	return c.breakers.Execute(circuitbreaker.ServiceBilling, fn)
}

// FetchSubscription retrieves the live subscription state from Stripe.
func (c *StripeClient) FetchSubscription(ctx context.Context, subscriptionID string) (ProviderSubscription, error) {
	result, err := c.execute(func() (interface{}, error) {
		params := &stripeapi.SubscriptionParams{
			Params: stripeapi.Params{Context: ctx},
		}
		return stripesub.Get(subscriptionID, params)
	})
	if err != nil {
		if isStripeNotFound(err) {
			return ProviderSubscription{}, ErrNotFound
		}
		return ProviderSubscription{}, fmt.Errorf("stripe: get subscription: %w", err)
	}

	sub := result.(*stripeapi.Subscription)
	out := ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		out.TrialEnd = &t
	}
	return out, nil
}

// FetchPrice retrieves a recurring price from Stripe.
func (c *StripeClient) FetchPrice(ctx context.Context, priceID string) (Price, error) {
	result, err := c.execute(func() (interface{}, error) {
		params := &stripeapi.PriceParams{
			Params: stripeapi.Params{Context: ctx},
		}
		return price.Get(priceID, params)
	})
	if err != nil {
		if isStripeNotFound(err) {
			return Price{}, ErrNotFound
		}
		return Price{}, fmt.Errorf("stripe: get price: %w", err)
	}

	p := result.(*stripeapi.Price)
	out := Price{
		ID:              p.ID,
		UnitAmountCents: p.UnitAmount,
		Currency:        string(p.Currency),
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
		out.IntervalCount = int(p.Recurring.IntervalCount)
	}
	return out, nil
}

// CreateCustomer registers a Stripe customer keyed to the tenant.
func (c *StripeClient) CreateCustomer(ctx context.Context, tenantID, email string) (string, error) {
	params := &stripeapi.CustomerParams{
		Params: stripeapi.Params{Context: ctx},
	}
	if email != "" {
		params.Email = stripeapi.String(email)
	}
	params.AddMetadata("tenant_id", tenantID)

	result, err := c.execute(func() (interface{}, error) {
		return customer.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return result.(*stripeapi.Customer).ID, nil
}

// CancelSubscription cancels a Stripe subscription.
func (c *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	_, err := c.execute(func() (interface{}, error) {
		if atPeriodEnd {
			params := &stripeapi.SubscriptionParams{
				Params:            stripeapi.Params{Context: ctx},
				CancelAtPeriodEnd: stripeapi.Bool(true),
			}
			return stripesub.Update(subscriptionID, params)
		}
		params := &stripeapi.SubscriptionCancelParams{
			Params: stripeapi.Params{Context: ctx},
		}
		return stripesub.Cancel(subscriptionID, params)
	})
	if err != nil {
		if isStripeNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	return nil
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 ||
			stripeErr.Code == stripeapi.ErrorCodeResourceMissing
	}
	return false
}
