// Package access is the read side of the subscription engine: it answers
// "what may this tenant do right now" from the cache, the store, and, when
// needed, a live reconcile. It also owns the tenant-facing state changes
// (trial start, cancellation) that the sync engine does not initiate.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/cache"
	"github.com/tidybook/subsync/internal/cacheutil"
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/observability"
	"github.com/tidybook/subsync/internal/store"
	"github.com/tidybook/subsync/internal/subscription"
	syncpkg "github.com/tidybook/subsync/internal/sync"
)

var (
	// ErrTrialAlreadyUsed is returned when a tenant that already has a
	// record requests a trial.
	ErrTrialAlreadyUsed = errors.New("access: trial already used")

	// ErrNotSubscribed is returned when an operation needs an existing record.
	ErrNotSubscribed = errors.New("access: tenant has no subscription")

	// ErrAlreadyCancelled is returned when cancelling a cancelled subscription.
	ErrAlreadyCancelled = errors.New("access: subscription already cancelled")
)

// StatusView is the tenant-facing snapshot returned by status lookups.
type StatusView struct {
	TenantID             string              `json:"tenantId"`
	Status               subscription.Status `json:"status"`
	StoredStatus         subscription.Status `json:"storedStatus"`
	Linked               bool                `json:"linked"`
	TrialEndsAt          *time.Time          `json:"trialEndsAt,omitempty"`
	EndsAt               *time.Time          `json:"endsAt,omitempty"`
	DaysUntilNextPayment int                 `json:"daysUntilNextPayment"`
	CachedAt             time.Time           `json:"cachedAt"`
	FromCache            bool                `json:"-"`
}

// Service answers status queries and applies tenant-initiated changes.
type Service struct {
	store      store.Repository
	cache      cache.Cache
	billing    billing.Client
	reconciler *syncpkg.Reconciler
	logins     *syncpkg.LoginQueue
	hooks      *observability.Registry
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	trialDays  int
	priceID    string

	now func() time.Time
}

// Options configures the access service.
type Options struct {
	Store      store.Repository
	Cache      cache.Cache
	Billing    billing.Client
	Reconciler *syncpkg.Reconciler
	Logins     *syncpkg.LoginQueue
	Hooks      *observability.Registry
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	TrialDays  int    // Trial length granted at signup (default: 14)
	PriceID    string // Recurring price used for MRR estimation (optional)
}

// NewService creates the access service.
func NewService(opts Options) *Service {
	if opts.TrialDays <= 0 {
		opts.TrialDays = 14
	}
	return &Service{
		store:      opts.Store,
		cache:      opts.Cache,
		billing:    opts.Billing,
		reconciler: opts.Reconciler,
		logins:     opts.Logins,
		hooks:      opts.Hooks,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		trialDays:  opts.TrialDays,
		priceID:    opts.PriceID,
		now:        time.Now,
	}
}

// Status returns the tenant's effective status, served from cache when
// fresh. A missing record reads as unsubscribed, never as an error.
func (s *Service) Status(ctx context.Context, tenantID string) (StatusView, error) {
	if s.cache != nil {
		entry, ok, err := s.cache.Get(ctx, tenantID)
		if err != nil {
			s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache read failed")
		}
		if s.metrics != nil {
			s.metrics.ObserveCache(ok)
		}
		if ok {
			view := s.view(entry.Record, entry.Effective)
			view.CachedAt = entry.FetchedAt
			view.FromCache = true
			return view, nil
		}
	}

	// Cache miss: best-effort sync first so a linked tenant picks up
	// provider-side drift (a portal cancellation, a failed renewal) on the
	// next read instead of waiting for the scheduler. Failures leave the
	// stored record authoritative; Refresh is the path that surfaces them.
	s.readThroughSync(ctx, tenantID)
	return s.evaluate(ctx, tenantID)
}

// readThroughSync reconciles without letting sync failures reach the caller.
func (s *Service) readThroughSync(ctx context.Context, tenantID string) {
	if s.reconciler == nil {
		return
	}
	if _, err := s.reconciler.Reconcile(ctx, tenantID, "read_through"); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Msg("read-through sync failed, serving stored state")
	}
}

// Refresh forces a provider sync before evaluating. Sync failures surface
// to the caller; the stored (stale) state remains authoritative.
func (s *Service) Refresh(ctx context.Context, tenantID string) (StatusView, error) {
	if s.reconciler != nil {
		if _, err := s.reconciler.Reconcile(ctx, tenantID, "manual"); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return s.unsubscribedView(tenantID), nil
			}
			return StatusView{}, err
		}
	}
	return s.evaluate(ctx, tenantID)
}

// evaluate loads the record, applies time-based decay, writes decayed
// transitions back to the store BEFORE caching, and caches the snapshot.
func (s *Service) evaluate(ctx context.Context, tenantID string) (StatusView, error) {
	rec, err := s.store.GetByTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return s.unsubscribedView(tenantID), nil
	}
	if err != nil {
		return StatusView{}, fmt.Errorf("load record: %w", err)
	}

	now := s.now()
	effective := subscription.EffectiveStatus(rec, now)

	if subscription.Decayed(rec.Status, effective) {
		// Persist the expiry first so the cache can never outlive the store.
		if err := s.store.MarkStatus(ctx, tenantID, effective); err != nil {
			return StatusView{}, fmt.Errorf("write back decay: %w", err)
		}
		if s.hooks != nil {
			s.hooks.EmitStatusTransition(ctx, observability.StatusTransitionEvent{
				Timestamp: now,
				TenantID:  tenantID,
				From:      string(rec.Status),
				To:        string(effective),
				Source:    "decay",
			})
		}
		rec.Status = effective
	}

	if s.cache != nil {
		entry := cache.Entry{Record: rec, Effective: effective, FetchedAt: now}
		if err := s.cache.Set(ctx, tenantID, entry); err != nil {
			s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache write failed")
		}
	}

	view := s.view(rec, effective)
	view.CachedAt = now
	return view, nil
}

// OnLogin schedules the deferred post-login sync. Returns whether a new
// sync was scheduled (false means one was already pending).
func (s *Service) OnLogin(tenantID string) bool {
	if s.logins == nil {
		return false
	}
	return s.logins.OnLogin(tenantID)
}

// StartTrial creates the tenant's one-and-only record in trial state and
// best-effort registers a provider customer. A provider failure leaves the
// customer id empty; linking happens later through checkout webhooks.
func (s *Service) StartTrial(ctx context.Context, tenantID, email string) (subscription.Record, error) {
	if tenantID == "" {
		return subscription.Record{}, errors.New("access: tenant id required")
	}

	if _, err := s.store.GetByTenant(ctx, tenantID); err == nil {
		return subscription.Record{}, ErrTrialAlreadyUsed
	} else if !errors.Is(err, store.ErrNotFound) {
		return subscription.Record{}, fmt.Errorf("load record: %w", err)
	}

	now := s.now()
	trialEnds := now.Add(time.Duration(s.trialDays) * 24 * time.Hour)
	rec := subscription.Record{
		TenantID:    tenantID,
		Status:      subscription.StatusTrial,
		TrialEndsAt: &trialEnds,
	}

	if s.billing != nil && email != "" {
		customerID, err := s.billing.CreateCustomer(ctx, tenantID, email)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("tenant_id", tenantID).
				Msg("provider customer creation failed, starting trial unlinked")
		} else {
			rec.ExternalCustomerID = customerID
		}
	}

	err := cacheutil.WriteThrough(
		func() { s.invalidate(ctx, tenantID) },
		func() error { return s.store.Upsert(ctx, rec) },
	)
	if err != nil {
		return subscription.Record{}, fmt.Errorf("create trial record: %w", err)
	}

	if s.hooks != nil {
		s.hooks.EmitStatusTransition(ctx, observability.StatusTransitionEvent{
			Timestamp: now,
			TenantID:  tenantID,
			From:      string(subscription.StatusUnsubscribed),
			To:        string(subscription.StatusTrial),
			Source:    "trial",
		})
	}

	stored, err := s.store.GetByTenant(ctx, tenantID)
	if err != nil {
		return rec, nil
	}
	return stored, nil
}

// Cancel cancels the subscription: provider-side first (at period end by
// default), then locally. The paid window plus grace keeps access until
// ends_at, so cancelling is not an immediate lockout.
func (s *Service) Cancel(ctx context.Context, tenantID string, atPeriodEnd bool) (subscription.Record, error) {
	rec, err := s.store.GetByTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return subscription.Record{}, ErrNotSubscribed
	}
	if err != nil {
		return subscription.Record{}, fmt.Errorf("load record: %w", err)
	}

	if rec.Status == subscription.StatusCancelled || rec.Status == subscription.StatusExpired {
		return subscription.Record{}, ErrAlreadyCancelled
	}

	if rec.Linked() && s.billing != nil {
		if err := s.billing.CancelSubscription(ctx, rec.ExternalSubscriptionID, atPeriodEnd); err != nil {
			// A provider-side miss just means there is nothing left to
			// cancel remotely; proceed with the local mark.
			if !errors.Is(err, billing.ErrNotFound) {
				return subscription.Record{}, fmt.Errorf("provider cancel: %w", err)
			}
		}
	}

	err = cacheutil.WriteThrough(
		func() { s.invalidate(ctx, tenantID) },
		func() error { return s.store.MarkStatus(ctx, tenantID, subscription.StatusCancelled) },
	)
	if err != nil {
		return subscription.Record{}, fmt.Errorf("mark cancelled: %w", err)
	}

	if s.hooks != nil {
		s.hooks.EmitStatusTransition(ctx, observability.StatusTransitionEvent{
			Timestamp: s.now(),
			TenantID:  tenantID,
			From:      string(rec.Status),
			To:        string(subscription.StatusCancelled),
			Source:    "cancel",
		})
	}

	stored, err := s.store.GetByTenant(ctx, tenantID)
	if err != nil {
		return subscription.Record{}, fmt.Errorf("reload record: %w", err)
	}
	return stored, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID); err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache invalidation failed")
	}
}

func (s *Service) view(rec subscription.Record, effective subscription.Status) StatusView {
	return StatusView{
		TenantID:             rec.TenantID,
		Status:               effective,
		StoredStatus:         rec.Status,
		Linked:               rec.Linked(),
		TrialEndsAt:          rec.TrialEndsAt,
		EndsAt:               rec.EndsAt,
		DaysUntilNextPayment: rec.DaysUntilNextPayment(s.now()),
	}
}

func (s *Service) unsubscribedView(tenantID string) StatusView {
	return StatusView{
		TenantID:     tenantID,
		Status:       subscription.StatusUnsubscribed,
		StoredStatus: subscription.StatusUnsubscribed,
		CachedAt:     s.now(),
	}
}
