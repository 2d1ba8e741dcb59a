package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// Webhook event types that drive a reconcile. Everything else is ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// WebhookEvent is a provider webhook normalized down to what sync needs:
// which subscription changed. The reconciler re-fetches the full state, so
// the payload details beyond identity do not matter.
type WebhookEvent struct {
	ID             string
	Type           string
	SubscriptionID string
	CustomerID     string
	TenantID       string // from checkout metadata, when present
}

// Relevant reports whether the event type affects subscription state.
func (e WebhookEvent) Relevant() bool {
	switch e.Type {
	case EventCheckoutCompleted, EventSubscriptionUpdated,
		EventSubscriptionDeleted, EventInvoicePaid, EventInvoiceFailed:
		return true
	}
	return false
}

// WebhookParser validates signatures and normalizes provider webhooks.
type WebhookParser struct {
	secret string
}

// NewWebhookParser creates a parser with the endpoint's signing secret.
func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: secret}
}

// Parse validates the event signature and normalizes the payload.
func (p *WebhookParser) Parse(payload []byte, signature string) (WebhookEvent, error) {
	if p.secret == "" {
		return WebhookEvent{}, errors.New("billing: webhook secret not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, p.secret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("billing: construct event: %w", err)
	}

	out := WebhookEvent{ID: event.ID, Type: event.Type}

	switch event.Type {
	case EventCheckoutCompleted:
		var checkout stripeapi.CheckoutSession
		if err := jsonExtract(event.Data.Raw, &checkout); err != nil {
			return WebhookEvent{}, err
		}
		if checkout.Subscription != nil {
			out.SubscriptionID = checkout.Subscription.ID
		}
		if checkout.Customer != nil {
			out.CustomerID = checkout.Customer.ID
		}
		if checkout.Metadata != nil {
			out.TenantID = checkout.Metadata["tenant_id"]
		}

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripeapi.Subscription
		if err := jsonExtract(event.Data.Raw, &sub); err != nil {
			return WebhookEvent{}, err
		}
		out.SubscriptionID = sub.ID
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		if sub.Metadata != nil {
			out.TenantID = sub.Metadata["tenant_id"]
		}

	case EventInvoicePaid, EventInvoiceFailed:
		var invoice stripeapi.Invoice
		if err := jsonExtract(event.Data.Raw, &invoice); err != nil {
			return WebhookEvent{}, err
		}
		if invoice.Subscription != nil {
			out.SubscriptionID = invoice.Subscription.ID
		}
		if invoice.Customer != nil {
			out.CustomerID = invoice.Customer.ID
		}
	}

	return out, nil
}

func jsonExtract(data []byte, v any) error {
	if len(data) == 0 {
		return errors.New("billing: webhook payload empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("billing: decode webhook payload: %w", err)
	}
	return nil
}
