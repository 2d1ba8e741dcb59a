package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/store"
	"github.com/tidybook/subsync/internal/subscription"
)

// ErrUnresolvedTenant is returned when a webhook names a subscription no
// local record is linked to and carries no tenant metadata.
var ErrUnresolvedTenant = errors.New("sync: webhook tenant could not be resolved")

// Ingestor turns verified billing webhooks into reconciles. Webhooks are
// just another sync trigger: the event only tells us WHICH subscription
// changed, the reconciler re-fetches the authoritative state. That keeps
// the store single-writer even when provider pushes and the scheduler race.
type Ingestor struct {
	store      store.Repository
	reconciler *Reconciler
	logger     zerolog.Logger
}

// IngestorOptions configures the webhook ingestor.
type IngestorOptions struct {
	Store      store.Repository
	Reconciler *Reconciler
	Logger     zerolog.Logger
}

// NewIngestor creates a webhook ingestor.
func NewIngestor(opts IngestorOptions) *Ingestor {
	return &Ingestor{
		store:      opts.Store,
		reconciler: opts.Reconciler,
		logger:     opts.Logger,
	}
}

// Process resolves the tenant behind the event and reconciles it. Returns
// the resolved tenant id. Irrelevant event types are a no-op with an empty
// tenant id and nil error.
func (i *Ingestor) Process(ctx context.Context, ev billing.WebhookEvent) (string, error) {
	if !ev.Relevant() {
		i.logger.Debug().Str("event_type", ev.Type).Msg("webhook.ignored")
		return "", nil
	}

	tenantID, err := i.resolveTenant(ctx, ev)
	if err != nil {
		return "", err
	}

	if ev.Type == billing.EventCheckoutCompleted && ev.SubscriptionID != "" {
		if err := i.link(ctx, tenantID, ev); err != nil {
			return tenantID, err
		}
	}

	if _, err := i.reconciler.Reconcile(ctx, tenantID, "webhook"); err != nil {
		return tenantID, err
	}
	return tenantID, nil
}

// resolveTenant prefers the tenant id carried in checkout metadata and
// falls back to the record linked to the event's subscription id.
func (i *Ingestor) resolveTenant(ctx context.Context, ev billing.WebhookEvent) (string, error) {
	if ev.TenantID != "" {
		return ev.TenantID, nil
	}
	if ev.SubscriptionID == "" {
		return "", ErrUnresolvedTenant
	}

	rec, err := i.store.GetByExternalID(ctx, ev.SubscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnresolvedTenant
	}
	if err != nil {
		return "", fmt.Errorf("resolve tenant: %w", err)
	}
	return rec.TenantID, nil
}

// link writes the external subscription and customer ids onto the tenant's
// record so future syncs can find it. Creates the record if checkout is the
// first thing we ever hear about this tenant.
func (i *Ingestor) link(ctx context.Context, tenantID string, ev billing.WebhookEvent) error {
	rec, err := i.store.GetByTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		rec = subscription.Record{
			TenantID: tenantID,
			Status:   subscription.StatusPending,
		}
	} else if err != nil {
		return fmt.Errorf("load record: %w", err)
	}

	if rec.ExternalSubscriptionID == ev.SubscriptionID && (ev.CustomerID == "" || rec.ExternalCustomerID == ev.CustomerID) {
		return nil
	}

	rec.ExternalSubscriptionID = ev.SubscriptionID
	if ev.CustomerID != "" {
		rec.ExternalCustomerID = ev.CustomerID
	}

	if err := i.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("link record: %w", err)
	}
	i.logger.Info().
		Str("tenant_id", tenantID).
		Str("subscription_id", ev.SubscriptionID).
		Msg("webhook.checkout.linked")
	return nil
}
