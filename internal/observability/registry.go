package observability

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Registry manages a collection of observability hooks.
// It safely dispatches events to all registered hooks with error handling.
type Registry struct {
	syncHooks      []SyncHook
	lifecycleHooks []LifecycleHook
	logger         zerolog.Logger
	mu             sync.RWMutex
}

// NewRegistry creates a new hook registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger,
	}
}

// RegisterSyncHook adds a sync hook to the registry.
func (r *Registry) RegisterSyncHook(hook SyncHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncHooks = append(r.syncHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered sync hook")
}

// RegisterLifecycleHook adds a lifecycle hook to the registry.
func (r *Registry) RegisterLifecycleHook(hook LifecycleHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycleHooks = append(r.lifecycleHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered lifecycle hook")
}

// ===============================================
// Sync Hook Dispatchers
// ===============================================

// EmitSyncStarted dispatches the event to all sync hooks.
func (r *Registry) EmitSyncStarted(ctx context.Context, event SyncStartedEvent) {
	r.mu.RLock()
	hooks := r.syncHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnSyncStarted", hook.Name())
			hook.OnSyncStarted(ctx, event)
		}()
	}
}

// EmitSyncCompleted dispatches the event to all sync hooks.
func (r *Registry) EmitSyncCompleted(ctx context.Context, event SyncCompletedEvent) {
	r.mu.RLock()
	hooks := r.syncHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnSyncCompleted", hook.Name())
			hook.OnSyncCompleted(ctx, event)
		}()
	}
}

// EmitBatchCompleted dispatches the event to all sync hooks.
func (r *Registry) EmitBatchCompleted(ctx context.Context, event BatchCompletedEvent) {
	r.mu.RLock()
	hooks := r.syncHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnBatchCompleted", hook.Name())
			hook.OnBatchCompleted(ctx, event)
		}()
	}
}

// ===============================================
// Lifecycle Hook Dispatchers
// ===============================================

// EmitStatusTransition dispatches the event to all lifecycle hooks.
func (r *Registry) EmitStatusTransition(ctx context.Context, event StatusTransitionEvent) {
	r.mu.RLock()
	hooks := r.lifecycleHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnStatusTransition", hook.Name())
			hook.OnStatusTransition(ctx, event)
		}()
	}
}

// EmitRenewalDue dispatches the event to all lifecycle hooks.
func (r *Registry) EmitRenewalDue(ctx context.Context, event RenewalDueEvent) {
	r.mu.RLock()
	hooks := r.lifecycleHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnRenewalDue", hook.Name())
			hook.OnRenewalDue(ctx, event)
		}()
	}
}

// ===============================================
// Error Recovery
// ===============================================

// recoverPanic recovers from panics in hook implementations.
// This ensures one bad hook doesn't crash the entire system.
func (r *Registry) recoverPanic(method, hookName string) {
	if err := recover(); err != nil {
		r.logger.Error().
			Str("hook", hookName).
			Str("method", method).
			Interface("panic", err).
			Msg("observability hook panicked (recovered)")
	}
}
