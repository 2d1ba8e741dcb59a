package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LoginQueue schedules a best-effort reconcile shortly after a tenant logs
// in. The delay keeps the login path fast and absorbs bursts: repeated
// logins inside the deferral window collapse into a single sync.
type LoginQueue struct {
	reconciler *Reconciler
	logger     zerolog.Logger
	delay      time.Duration
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// NewLoginQueue creates a login sync queue. delay is how long after login
// the sync fires (default: 30s).
func NewLoginQueue(reconciler *Reconciler, delay time.Duration, logger zerolog.Logger) *LoginQueue {
	if delay <= 0 {
		delay = 30 * time.Second
	}
	return &LoginQueue{
		reconciler: reconciler,
		logger:     logger,
		delay:      delay,
		timeout:    30 * time.Second,
		pending:    make(map[string]*time.Timer),
	}
}

// OnLogin schedules a deferred sync for the tenant. Returns false if a sync
// is already pending for this tenant within the deferral window.
func (q *LoginQueue) OnLogin(tenantID string) bool {
	if tenantID == "" {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, exists := q.pending[tenantID]; exists {
		return false
	}

	q.wg.Add(1)
	q.pending[tenantID] = time.AfterFunc(q.delay, func() {
		defer q.wg.Done()

		q.mu.Lock()
		delete(q.pending, tenantID)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()

		if _, err := q.reconciler.Reconcile(ctx, tenantID, "login"); err != nil {
			// Best effort: the record stays stale until the scheduler
			// or a forced refresh picks it up.
			q.logger.Debug().
				Err(err).
				Str("tenant_id", tenantID).
				Msg("login sync failed")
		}
	})

	return true
}

// PendingCount returns how many tenants have a sync scheduled.
func (q *LoginQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop cancels pending timers and waits for in-flight syncs to finish.
func (q *LoginQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	for tenantID, timer := range q.pending {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.pending, tenantID)
	}
	q.mu.Unlock()

	q.wg.Wait()
}
