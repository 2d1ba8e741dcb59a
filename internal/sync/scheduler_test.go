package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/store"
	"github.com/tidybook/subsync/internal/subscription"
)

func newTestScheduler(t *testing.T, client billing.Client, repo *store.MemoryRepository, batchLimit int) *Scheduler {
	t.Helper()
	r := NewReconciler(ReconcilerOptions{
		Store:   repo,
		Billing: client,
		Logger:  zerolog.Nop(),
	})
	return NewScheduler(SchedulerOptions{
		Store:          repo,
		Reconciler:     r,
		Logger:         zerolog.Nop(),
		StaleAfter:     time.Nanosecond,
		BatchLimit:     batchLimit,
		InterCallDelay: time.Millisecond,
	})
}

func TestRunOnceSyncsStaleRecords(t *testing.T) {
	client := newFakeBillingClient()
	client.subscriptions["sub_1"] = billing.ProviderSubscription{ID: "sub_1", Status: "active"}
	client.subscriptions["sub_2"] = billing.ProviderSubscription{ID: "sub_2", Status: "canceled"}

	repo := store.NewMemoryRepository()
	defer repo.Close()
	seedLinked(t, repo, "t1", "sub_1", subscription.StatusTrial)
	seedLinked(t, repo, "t2", "sub_2", subscription.StatusActive)

	// Unsyncable status: never picked up.
	seedLinked(t, repo, "t3", "sub_3", subscription.StatusExpired)

	// Let the seeded records age past the staleness cutoff.
	time.Sleep(5 * time.Millisecond)

	s := newTestScheduler(t, client, repo, 50)

	synced, failed, err := s.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if synced != 2 || failed != 0 {
		t.Errorf("synced/failed = %d/%d, want 2/0", synced, failed)
	}

	rec, err := repo.GetByTenant(context.Background(), "t2")
	if err != nil {
		t.Fatalf("GetByTenant: %v", err)
	}
	if rec.Status != subscription.StatusCancelled {
		t.Errorf("t2 status = %s, want cancelled", rec.Status)
	}

	// The expired record was never touched.
	if client.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", client.calls())
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	client := newFakeBillingClient()
	// Only t2's subscription exists; t1's fetch fails with not-found.
	client.subscriptions["sub_2"] = billing.ProviderSubscription{ID: "sub_2", Status: "active"}

	repo := store.NewMemoryRepository()
	defer repo.Close()
	seedLinked(t, repo, "t1", "sub_1", subscription.StatusActive)
	seedLinked(t, repo, "t2", "sub_2", subscription.StatusTrial)

	time.Sleep(5 * time.Millisecond)

	s := newTestScheduler(t, client, repo, 50)

	synced, failed, err := s.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if synced != 1 {
		t.Errorf("synced = %d, want 1", synced)
	}

	// The failed tenant's record is untouched.
	rec, _ := repo.GetByTenant(context.Background(), "t1")
	if rec.Status != subscription.StatusActive {
		t.Errorf("t1 status = %s, want active", rec.Status)
	}
	// The healthy tenant still got synced.
	rec, _ = repo.GetByTenant(context.Background(), "t2")
	if rec.Status != subscription.StatusActive {
		t.Errorf("t2 status = %s, want active", rec.Status)
	}
}

func TestRunOnceRespectsBatchLimit(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		client.subscriptions["sub_"+id] = billing.ProviderSubscription{ID: "sub_" + id, Status: "active"}
		seedLinked(t, repo, id, "sub_"+id, subscription.StatusActive)
	}

	time.Sleep(5 * time.Millisecond)

	s := newTestScheduler(t, client, repo, 50)

	synced, failed, err := s.RunOnce(context.Background(), 2)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if synced != 2 || failed != 0 {
		t.Errorf("synced/failed = %d/%d, want 2/0", synced, failed)
	}
	if client.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", client.calls())
	}
}

func TestRunOnceEmptyBatch(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	s := newTestScheduler(t, client, repo, 50)

	synced, failed, err := s.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if synced != 0 || failed != 0 {
		t.Errorf("synced/failed = %d/%d, want 0/0", synced, failed)
	}
}

func TestRunOnceStopsOnContextCancel(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	for _, id := range []string{"a", "b", "c"} {
		client.subscriptions["sub_"+id] = billing.ProviderSubscription{ID: "sub_" + id, Status: "active"}
		seedLinked(t, repo, id, "sub_"+id, subscription.StatusActive)
	}

	time.Sleep(5 * time.Millisecond)

	r := NewReconciler(ReconcilerOptions{
		Store:   repo,
		Billing: client,
		Logger:  zerolog.Nop(),
	})
	s := NewScheduler(SchedulerOptions{
		Store:          repo,
		Reconciler:     r,
		Logger:         zerolog.Nop(),
		StaleAfter:     time.Nanosecond,
		BatchLimit:     50,
		InterCallDelay: time.Hour, // Forces the cancel branch between calls
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := s.RunOnce(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunOnceZeroesEmptiedStatusGauges(t *testing.T) {
	client := newFakeBillingClient()
	client.subscriptions["sub_1"] = billing.ProviderSubscription{ID: "sub_1", Status: "active"}

	repo := store.NewMemoryRepository()
	defer repo.Close()
	seedLinked(t, repo, "t1", "sub_1", subscription.StatusActive)
	time.Sleep(5 * time.Millisecond)

	m := metrics.New(prometheus.NewRegistry())
	r := NewReconciler(ReconcilerOptions{
		Store:   repo,
		Billing: client,
		Logger:  zerolog.Nop(),
	})
	s := NewScheduler(SchedulerOptions{
		Store:          repo,
		Reconciler:     r,
		Metrics:        m,
		Logger:         zerolog.Nop(),
		StaleAfter:     time.Nanosecond,
		BatchLimit:     50,
		InterCallDelay: time.Millisecond,
	})

	if _, _, err := s.RunOnce(context.Background(), 0); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := testutil.ToFloat64(m.RecordsByStatus.WithLabelValues("active")); got != 1 {
		t.Fatalf("active gauge = %v, want 1", got)
	}

	// The provider cancels the only active subscription between passes.
	client.mu.Lock()
	client.subscriptions["sub_1"] = billing.ProviderSubscription{ID: "sub_1", Status: "canceled"}
	client.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	if _, _, err := s.RunOnce(context.Background(), 0); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := testutil.ToFloat64(m.RecordsByStatus.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("cancelled gauge = %v, want 1", got)
	}
	// The emptied status must be republished as zero, not left at 1.
	if got := testutil.ToFloat64(m.RecordsByStatus.WithLabelValues("active")); got != 0 {
		t.Errorf("active gauge = %v, want 0 after the record left active", got)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	r := NewReconciler(ReconcilerOptions{
		Store:   repo,
		Billing: client,
		Logger:  zerolog.Nop(),
	})
	s := NewScheduler(SchedulerOptions{
		Store:      repo,
		Reconciler: r,
		Logger:     zerolog.Nop(),
		Interval:   10 * time.Millisecond,
	})

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	s.Stop() // Must not hang or panic
}
