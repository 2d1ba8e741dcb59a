package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func trialResponse(tenantID string) *Response {
	return &Response{
		StatusCode: 201,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(fmt.Sprintf(`{"tenantId":%q,"status":"trial"}`, tenantID)),
		CachedAt:   time.Now(),
	}
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStoreWithSize(10)
	defer s.Stop()
	ctx := context.Background()

	if _, ok := s.Get(ctx, "trial-ghost"); ok {
		t.Error("unknown key should miss")
	}

	if err := s.Set(ctx, "trial-acme", trialResponse("acme"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get(ctx, "trial-acme")
	if !ok {
		t.Fatal("expected cached response")
	}
	if got.StatusCode != 201 {
		t.Errorf("status = %d, want 201", got.StatusCode)
	}
	if string(got.Body) != `{"tenantId":"acme","status":"trial"}` {
		t.Errorf("body = %s", got.Body)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStoreWithSize(10)
	defer s.Stop()
	ctx := context.Background()

	if err := s.Set(ctx, "cancel-acme", trialResponse("acme"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	replacement := &Response{StatusCode: 200, Body: []byte(`{"status":"cancelled"}`), CachedAt: time.Now()}
	if err := s.Set(ctx, "cancel-acme", replacement, 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get(ctx, "cancel-acme")
	if !ok {
		t.Fatal("expected cached response")
	}
	if got.StatusCode != 200 || string(got.Body) != `{"status":"cancelled"}` {
		t.Errorf("got %d %s, want the overwritten response", got.StatusCode, got.Body)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStoreWithSize(10)
	defer s.Stop()
	ctx := context.Background()

	if err := s.Set(ctx, "trial-acme", trialResponse("acme"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := s.Get(ctx, "trial-acme"); !ok {
		t.Fatal("entry should be readable before its TTL")
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok := s.Get(ctx, "trial-acme"); ok {
		t.Error("entry should expire after its TTL")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStoreWithSize(10)
	defer s.Stop()
	ctx := context.Background()

	if err := s.Set(ctx, "trial-acme", trialResponse("acme"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, "trial-acme"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get(ctx, "trial-acme"); ok {
		t.Error("deleted key should miss")
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	s := NewMemoryStoreWithSize(3)
	defer s.Stop()
	ctx := context.Background()

	for _, tenant := range []string{"t1", "t2", "t3"} {
		if err := s.Set(ctx, "trial-"+tenant, trialResponse(tenant), 5*time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// A fourth entry pushes out the oldest untouched one.
	if err := s.Set(ctx, "trial-t4", trialResponse("t4"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok := s.Get(ctx, "trial-t1"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, tenant := range []string{"t2", "t3", "t4"} {
		if _, ok := s.Get(ctx, "trial-"+tenant); !ok {
			t.Errorf("trial-%s should survive eviction", tenant)
		}
	}
}

func TestMemoryStoreGetRefreshesRecency(t *testing.T) {
	s := NewMemoryStoreWithSize(3)
	defer s.Stop()
	ctx := context.Background()

	for _, tenant := range []string{"t1", "t2", "t3"} {
		_ = s.Set(ctx, "trial-"+tenant, trialResponse(tenant), 5*time.Minute)
	}

	// Reading t1 makes t2 the eviction candidate.
	if _, ok := s.Get(ctx, "trial-t1"); !ok {
		t.Fatal("trial-t1 should be present")
	}
	_ = s.Set(ctx, "trial-t4", trialResponse("t4"), 5*time.Minute)

	if _, ok := s.Get(ctx, "trial-t2"); ok {
		t.Error("trial-t2 should have been evicted, not the recently read key")
	}
	if _, ok := s.Get(ctx, "trial-t1"); !ok {
		t.Error("recently read trial-t1 should survive")
	}
}

func TestMemoryStoreBoundUnderConcurrency(t *testing.T) {
	const maxSize = 100
	const workers = 20
	const opsPerWorker = 50

	s := NewMemoryStoreWithSize(maxSize)
	defer s.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < opsPerWorker; j++ {
				key := fmt.Sprintf("trial-w%d-%d", worker, j)
				if err := s.Set(ctx, key, trialResponse("acme"), 5*time.Minute); err != nil {
					t.Errorf("Set: %v", err)
					return
				}
				// Eviction may have raced this key out already; we only
				// care that the structures stay consistent.
				s.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	cacheSize := len(s.cache)
	lruSize := s.lru.Len()
	s.mu.Unlock()

	if cacheSize > maxSize {
		t.Errorf("cache size %d exceeds bound %d", cacheSize, maxSize)
	}
	if cacheSize != lruSize {
		t.Errorf("cache size %d != lru size %d", cacheSize, lruSize)
	}
}

func TestMemoryStoreSweepDropsExpired(t *testing.T) {
	s := NewMemoryStoreWithSize(10)
	defer s.Stop()
	ctx := context.Background()

	_ = s.Set(ctx, "trial-old", trialResponse("old"), time.Millisecond)
	_ = s.Set(ctx, "trial-new", trialResponse("new"), time.Hour)

	s.sweep(time.Now().Add(time.Second))

	s.mu.Lock()
	_, oldKept := s.cache["trial-old"]
	_, newKept := s.cache["trial-new"]
	s.mu.Unlock()

	if oldKept {
		t.Error("expired entry should be swept")
	}
	if !newKept {
		t.Error("live entry should survive the sweep")
	}
}
