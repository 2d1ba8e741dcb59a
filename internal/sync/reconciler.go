// Package sync reconciles locally stored subscription records against the
// billing provider. The Reconciler is the single writer for provider-driven
// state: scheduler passes, webhook events, login hooks, and forced refreshes
// all converge on Reconcile.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/cache"
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/observability"
	"github.com/tidybook/subsync/internal/store"
	"github.com/tidybook/subsync/internal/subscription"
)

// SyncError wraps a provider failure for one tenant. The stored record is
// left untouched when this is returned; callers keep serving stale state.
type SyncError struct {
	TenantID string
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync tenant %s: %v", e.TenantID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Reconciler pulls live subscription state from the billing provider and
// writes it through to the store, invalidating the status cache afterwards.
type Reconciler struct {
	store       store.Repository
	billing     billing.Client
	cache       cache.Cache
	hooks       *observability.Registry
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	renewalLead time.Duration

	// Concurrent reconciles for the same tenant share one provider call.
	group singleflight.Group

	now func() time.Time
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Store       store.Repository
	Billing     billing.Client
	Cache       cache.Cache
	Hooks       *observability.Registry
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	RenewalLead time.Duration // Window before ends_at to emit renewal-due events (default: 48h)
}

// NewReconciler creates a reconciler.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	if opts.RenewalLead <= 0 {
		opts.RenewalLead = 48 * time.Hour
	}
	return &Reconciler{
		store:       opts.Store,
		billing:     opts.Billing,
		cache:       opts.Cache,
		hooks:       opts.Hooks,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		renewalLead: opts.RenewalLead,
		now:         time.Now,
	}
}

// Reconcile refreshes one tenant's record from the billing provider.
//
// Unlinked records are returned unchanged: there is nothing to reconcile
// against until a provider subscription id is attached. Provider failures
// return a *SyncError and leave the store untouched. On success the record
// is upserted first and the cache invalidated after, so readers never see
// a cached snapshot newer than the store.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID, trigger string) (subscription.Record, error) {
	v, err, _ := r.group.Do(tenantID, func() (interface{}, error) {
		return r.reconcile(ctx, tenantID, trigger)
	})
	if err != nil {
		return subscription.Record{}, err
	}
	return v.(subscription.Record), nil
}

func (r *Reconciler) reconcile(ctx context.Context, tenantID, trigger string) (subscription.Record, error) {
	rec, err := r.store.GetByTenant(ctx, tenantID)
	if err != nil {
		return subscription.Record{}, err
	}

	if !rec.Linked() {
		return rec, nil
	}

	start := r.now()
	if r.hooks != nil {
		r.hooks.EmitSyncStarted(ctx, observability.SyncStartedEvent{
			Timestamp: start,
			TenantID:  tenantID,
			Trigger:   trigger,
		})
	}

	updated, err := r.pull(ctx, rec)
	duration := r.now().Sub(start)

	if err != nil {
		syncErr := &SyncError{TenantID: tenantID, Err: err}
		r.emitCompleted(ctx, tenantID, trigger, duration, rec.Status, rec.Status, syncErr)
		r.logger.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Str("trigger", trigger).
			Msg("reconcile failed, keeping stored state")
		return subscription.Record{}, syncErr
	}

	if err := r.store.Upsert(ctx, updated); err != nil {
		syncErr := &SyncError{TenantID: tenantID, Err: fmt.Errorf("persist: %w", err)}
		r.emitCompleted(ctx, tenantID, trigger, duration, rec.Status, updated.Status, syncErr)
		return subscription.Record{}, syncErr
	}

	// Invalidate after the write so a racing reader repopulates from the
	// new stored state, never the other way around.
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, tenantID); err != nil {
			r.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache invalidation failed")
		}
	}

	if rec.Status != updated.Status && r.hooks != nil {
		r.hooks.EmitStatusTransition(ctx, observability.StatusTransitionEvent{
			Timestamp: r.now(),
			TenantID:  tenantID,
			From:      string(rec.Status),
			To:        string(updated.Status),
			Source:    "sync",
		})
	}
	if subscription.RenewalDue(updated, r.now(), r.renewalLead) && r.hooks != nil {
		r.hooks.EmitRenewalDue(ctx, observability.RenewalDueEvent{
			Timestamp: r.now(),
			TenantID:  tenantID,
			EndsAt:    *updated.EndsAt,
			DaysLeft:  updated.DaysUntilNextPayment(r.now()),
		})
	}

	r.emitCompleted(ctx, tenantID, trigger, duration, rec.Status, updated.Status, nil)

	return updated, nil
}

// pull fetches the provider subscription and folds it into the record.
func (r *Reconciler) pull(ctx context.Context, rec subscription.Record) (subscription.Record, error) {
	sub, err := r.billing.FetchSubscription(ctx, rec.ExternalSubscriptionID)
	if err != nil {
		return subscription.Record{}, err
	}

	status, ok := subscription.MapProviderStatus(sub.Status)
	if !ok {
		if r.metrics != nil {
			r.metrics.ObserveMappingFallback(sub.Status)
		}
		r.logger.Warn().
			Str("tenant_id", rec.TenantID).
			Str("provider_status", sub.Status).
			Str("mapped_to", string(status)).
			Msg("unrecognized provider status, using fail-open default")
	}

	// A subscription flagged to cancel at period end reads as active on the
	// provider side until the period lapses. Store it as cancelled so the
	// grace rules take over locally.
	if status == subscription.StatusActive && sub.CancelAtPeriodEnd {
		status = subscription.StatusCancelled
	}

	rec.Status = status
	rec.TrialEndsAt = sub.TrialEnd
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		rec.EndsAt = &end
	}
	if sub.CustomerID != "" {
		rec.ExternalCustomerID = sub.CustomerID
	}

	return rec, nil
}

func (r *Reconciler) emitCompleted(ctx context.Context, tenantID, trigger string, duration time.Duration, oldStatus, newStatus subscription.Status, syncErr error) {
	if r.hooks == nil {
		return
	}
	event := observability.SyncCompletedEvent{
		Timestamp: r.now(),
		TenantID:  tenantID,
		Trigger:   trigger,
		Success:   syncErr == nil,
		Duration:  duration,
		OldStatus: string(oldStatus),
		NewStatus: string(newStatus),
	}
	if syncErr != nil {
		event.ErrorReason = syncErr.Error()
	}
	r.hooks.EmitSyncCompleted(ctx, event)
}

// IsNotFound reports whether err means the stored record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
