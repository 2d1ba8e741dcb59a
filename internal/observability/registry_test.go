package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Mock hook implementations for testing

type mockSyncHook struct {
	mu              sync.Mutex
	startedEvents   []SyncStartedEvent
	completedEvents []SyncCompletedEvent
	batchEvents     []BatchCompletedEvent
	shouldPanic     bool
}

func (h *mockSyncHook) Name() string { return "mock_sync" }

func (h *mockSyncHook) OnSyncStarted(ctx context.Context, event SyncStartedEvent) {
	if h.shouldPanic {
		panic("intentional panic for testing")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startedEvents = append(h.startedEvents, event)
}

func (h *mockSyncHook) OnSyncCompleted(ctx context.Context, event SyncCompletedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completedEvents = append(h.completedEvents, event)
}

func (h *mockSyncHook) OnBatchCompleted(ctx context.Context, event BatchCompletedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batchEvents = append(h.batchEvents, event)
}

func (h *mockSyncHook) getStartedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.startedEvents)
}

func (h *mockSyncHook) getCompletedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.completedEvents)
}

type mockLifecycleHook struct {
	mu               sync.Mutex
	transitionEvents []StatusTransitionEvent
	renewalEvents    []RenewalDueEvent
}

func (h *mockLifecycleHook) Name() string { return "mock_lifecycle" }

func (h *mockLifecycleHook) OnStatusTransition(ctx context.Context, event StatusTransitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitionEvents = append(h.transitionEvents, event)
}

func (h *mockLifecycleHook) OnRenewalDue(ctx context.Context, event RenewalDueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.renewalEvents = append(h.renewalEvents, event)
}

func (h *mockLifecycleHook) getTransitionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transitionEvents)
}

// Tests

func TestRegistry_RegisterAndEmitSync(t *testing.T) {
	logger := zerolog.Nop()
	registry := NewRegistry(logger)

	hook := &mockSyncHook{}
	registry.RegisterSyncHook(hook)

	ctx := context.Background()

	startedEvent := SyncStartedEvent{
		Timestamp: time.Now(),
		TenantID:  "tenant_1",
		Trigger:   "scheduler",
	}
	registry.EmitSyncStarted(ctx, startedEvent)

	if hook.getStartedCount() != 1 {
		t.Errorf("Expected 1 started event, got %d", hook.getStartedCount())
	}

	completedEvent := SyncCompletedEvent{
		Timestamp: time.Now(),
		TenantID:  "tenant_1",
		Trigger:   "scheduler",
		Success:   true,
		Duration:  100 * time.Millisecond,
		OldStatus: "trial",
		NewStatus: "active",
	}
	registry.EmitSyncCompleted(ctx, completedEvent)

	if hook.getCompletedCount() != 1 {
		t.Errorf("Expected 1 completed event, got %d", hook.getCompletedCount())
	}
}

func TestRegistry_MultipleHooks(t *testing.T) {
	logger := zerolog.Nop()
	registry := NewRegistry(logger)

	hook1 := &mockSyncHook{}
	hook2 := &mockSyncHook{}

	registry.RegisterSyncHook(hook1)
	registry.RegisterSyncHook(hook2)

	ctx := context.Background()
	event := SyncStartedEvent{
		Timestamp: time.Now(),
		TenantID:  "tenant_2",
		Trigger:   "login",
	}

	registry.EmitSyncStarted(ctx, event)

	// Both hooks should receive the event
	if hook1.getStartedCount() != 1 {
		t.Errorf("Hook1: Expected 1 started event, got %d", hook1.getStartedCount())
	}
	if hook2.getStartedCount() != 1 {
		t.Errorf("Hook2: Expected 1 started event, got %d", hook2.getStartedCount())
	}
}

func TestRegistry_PanicRecovery(t *testing.T) {
	logger := zerolog.Nop()
	registry := NewRegistry(logger)

	// Hook that panics
	panicHook := &mockSyncHook{shouldPanic: true}
	normalHook := &mockSyncHook{}

	registry.RegisterSyncHook(panicHook)
	registry.RegisterSyncHook(normalHook)

	ctx := context.Background()
	event := SyncStartedEvent{
		Timestamp: time.Now(),
		TenantID:  "tenant_3",
	}

	// Should not panic - panic should be recovered
	registry.EmitSyncStarted(ctx, event)

	// Normal hook should still receive event
	if normalHook.getStartedCount() != 1 {
		t.Errorf("Normal hook should still receive event after panic, got %d events", normalHook.getStartedCount())
	}
}

func TestRegistry_LifecycleHooks(t *testing.T) {
	logger := zerolog.Nop()
	registry := NewRegistry(logger)

	hook := &mockLifecycleHook{}
	registry.RegisterLifecycleHook(hook)

	ctx := context.Background()

	transitionEvent := StatusTransitionEvent{
		Timestamp: time.Now(),
		TenantID:  "tenant_4",
		From:      "trial",
		To:        "expired_trial",
		Source:    "decay",
	}
	registry.EmitStatusTransition(ctx, transitionEvent)

	if hook.getTransitionCount() != 1 {
		t.Errorf("Expected 1 transition event, got %d", hook.getTransitionCount())
	}
}

func TestRegistry_ConcurrentEmissions(t *testing.T) {
	logger := zerolog.Nop()
	registry := NewRegistry(logger)

	hook := &mockSyncHook{}
	registry.RegisterSyncHook(hook)

	ctx := context.Background()

	// Emit events concurrently
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			event := SyncStartedEvent{
				Timestamp: time.Now(),
				TenantID:  "tenant_" + string(rune('0'+id)),
			}
			registry.EmitSyncStarted(ctx, event)
		}(i)
	}

	wg.Wait()

	if hook.getStartedCount() != 100 {
		t.Errorf("Expected 100 started events, got %d", hook.getStartedCount())
	}
}

func TestPrometheusHookSatisfiesInterfaces(t *testing.T) {
	var _ SyncHook = (*PrometheusHook)(nil)
	var _ LifecycleHook = (*PrometheusHook)(nil)
	var _ SyncHook = (*LoggingHook)(nil)
	var _ LifecycleHook = (*LoggingHook)(nil)
}
