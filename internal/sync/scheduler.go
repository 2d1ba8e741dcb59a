package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/observability"
	"github.com/tidybook/subsync/internal/store"
	"github.com/tidybook/subsync/internal/subscription"
)

// Scheduler periodically reconciles stale linked records in small batches.
// Only records whose stored status still warrants provider attention
// (active, trial, past_due) are picked up; everything else drifts only
// through webhooks or explicit refreshes.
type Scheduler struct {
	store      store.Repository
	reconciler *Reconciler
	hooks      *observability.Registry
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	interval       time.Duration
	staleAfter     time.Duration
	batchLimit     int
	interCallDelay time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopChan  chan struct{}
	doneChan  chan struct{}

	now func() time.Time
}

// SchedulerOptions configures the background sync scheduler.
type SchedulerOptions struct {
	Store      store.Repository
	Reconciler *Reconciler
	Hooks      *observability.Registry
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger

	Interval       time.Duration // How often a pass runs (default: 1h)
	StaleAfter     time.Duration // Records untouched longer than this are stale (default: 1h)
	BatchLimit     int           // Max records per pass (default: 50)
	InterCallDelay time.Duration // Pause between provider calls (default: 100ms)
}

// NewScheduler creates a background sync scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 50
	}
	if opts.InterCallDelay <= 0 {
		opts.InterCallDelay = 100 * time.Millisecond
	}

	return &Scheduler{
		store:          opts.Store,
		reconciler:     opts.Reconciler,
		hooks:          opts.Hooks,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		interval:       opts.Interval,
		staleAfter:     opts.StaleAfter,
		batchLimit:     opts.BatchLimit,
		interCallDelay: opts.InterCallDelay,
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
		now:            time.Now,
	}
}

// Start begins the periodic sync loop. Subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started = true
		go s.run(ctx)
	})
}

// Stop gracefully stops the scheduler and waits for the loop to exit.
// Safe to call whether or not Start ever ran, and safe to call twice.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.started {
			<-s.doneChan
		}
	})
}

// run is the main loop that triggers a pass every interval.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("staleAfter", s.staleAfter).
		Int("batchLimit", s.batchLimit).
		Msg("sync scheduler started")

	for {
		select {
		case <-s.stopChan:
			s.logger.Info().Msg("sync scheduler stopping")
			return
		case <-ctx.Done():
			s.logger.Info().Msg("sync scheduler context cancelled")
			return
		case <-ticker.C:
			if _, _, err := s.RunOnce(ctx, s.batchLimit); err != nil {
				s.logger.Error().Err(err).Msg("sync pass failed")
			}
		}
	}
}

// RunOnce executes a single pass: pick up to limit stale linked records,
// oldest first, and reconcile each. Per-tenant failures are logged and
// counted; they never abort the batch. Returns (synced, failed).
func (s *Scheduler) RunOnce(ctx context.Context, limit int) (int, int, error) {
	if limit <= 0 {
		limit = s.batchLimit
	}

	start := s.now()
	olderThan := start.Add(-s.staleAfter)

	records, err := s.store.ListStale(ctx, olderThan, subscription.SyncableStatuses, limit)
	if err != nil {
		return 0, 0, err
	}

	if s.metrics != nil {
		s.metrics.ObserveBatch(len(records))
	}

	if len(records) == 0 {
		s.refreshStatusGauge(ctx)
		return 0, 0, nil
	}

	s.logger.Debug().Int("count", len(records)).Msg("reconciling stale records")

	var synced, failed int
	for i, rec := range records {
		if _, err := s.reconciler.Reconcile(ctx, rec.TenantID, "scheduler"); err != nil {
			failed++
			s.logger.Warn().
				Err(err).
				Str("tenant_id", rec.TenantID).
				Msg("stale record reconcile failed")
		} else {
			synced++
		}

		// Spread provider calls out so a big batch doesn't burst the API.
		if i < len(records)-1 {
			select {
			case <-ctx.Done():
				s.emitBatch(ctx, len(records), synced, failed, s.now().Sub(start))
				return synced, failed, ctx.Err()
			case <-time.After(s.interCallDelay):
			}
		}
	}

	s.emitBatch(ctx, len(records), synced, failed, s.now().Sub(start))
	s.refreshStatusGauge(ctx)

	s.logger.Info().
		Int("picked", len(records)).
		Int("synced", synced).
		Int("failed", failed).
		Msg("sync pass completed")

	return synced, failed, nil
}

func (s *Scheduler) emitBatch(ctx context.Context, picked, synced, failed int, duration time.Duration) {
	if s.hooks == nil {
		return
	}
	s.hooks.EmitBatchCompleted(ctx, observability.BatchCompletedEvent{
		Timestamp: s.now(),
		Picked:    picked,
		Synced:    synced,
		Failed:    failed,
		Duration:  duration,
	})
}

// refreshStatusGauge republishes per-status record counts.
func (s *Scheduler) refreshStatusGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("status count refresh failed")
		return
	}
	// Zero everything first: a status that emptied out since the last pass
	// is absent from counts and would otherwise keep its stale value.
	for _, status := range subscription.AllStatuses {
		s.metrics.SetStatusCount(string(status), 0)
	}
	for status, n := range counts {
		s.metrics.SetStatusCount(string(status), n)
	}
}
