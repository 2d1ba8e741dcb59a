package sync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/store"
	"github.com/tidybook/subsync/internal/subscription"
)

func TestLoginQueueSchedulesSync(t *testing.T) {
	client := newFakeBillingClient()
	client.subscriptions["sub_1"] = billing.ProviderSubscription{ID: "sub_1", Status: "active"}

	repo := store.NewMemoryRepository()
	defer repo.Close()
	seedLinked(t, repo, "t1", "sub_1", subscription.StatusTrial)

	r := NewReconciler(ReconcilerOptions{Store: repo, Billing: client, Logger: zerolog.Nop()})
	q := NewLoginQueue(r, 10*time.Millisecond, zerolog.Nop())
	defer q.Stop()

	if !q.OnLogin("t1") {
		t.Fatal("OnLogin should schedule the first sync")
	}

	// Wait for the deferred sync to fire.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec, err := repo.GetByTenant(context.Background(), "t1")
		if err == nil && rec.Status == subscription.StatusActive {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("deferred login sync never ran")
}

func TestLoginQueueSuppressesDuplicates(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	r := NewReconciler(ReconcilerOptions{Store: repo, Billing: client, Logger: zerolog.Nop()})
	q := NewLoginQueue(r, time.Hour, zerolog.Nop())
	defer q.Stop()

	if !q.OnLogin("t1") {
		t.Fatal("first login should schedule")
	}
	if q.OnLogin("t1") {
		t.Error("second login inside the window should be suppressed")
	}
	if !q.OnLogin("t2") {
		t.Error("different tenant should schedule independently")
	}
	if q.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2", q.PendingCount())
	}
}

func TestLoginQueueIgnoresEmptyTenant(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	r := NewReconciler(ReconcilerOptions{Store: repo, Billing: client, Logger: zerolog.Nop()})
	q := NewLoginQueue(r, time.Hour, zerolog.Nop())
	defer q.Stop()

	if q.OnLogin("") {
		t.Error("empty tenant id should not schedule")
	}
}

func TestLoginQueueStopCancelsPending(t *testing.T) {
	client := newFakeBillingClient()
	repo := store.NewMemoryRepository()
	defer repo.Close()

	r := NewReconciler(ReconcilerOptions{Store: repo, Billing: client, Logger: zerolog.Nop()})
	q := NewLoginQueue(r, time.Hour, zerolog.Nop())

	q.OnLogin("t1")
	q.OnLogin("t2")

	q.Stop() // Must not hang waiting on the hour-long timers

	if q.PendingCount() != 0 {
		t.Errorf("pending after Stop = %d, want 0", q.PendingCount())
	}
	if q.OnLogin("t3") {
		t.Error("OnLogin after Stop should be rejected")
	}
	if client.calls() != 0 {
		t.Errorf("provider calls = %d, want 0 (timers cancelled)", client.calls())
	}
}
