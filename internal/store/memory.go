package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidybook/subsync/internal/subscription"
)

// MemoryRepository is an in-memory implementation of Repository for tests
// and single-process deployments.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]subscription.Record // tenantID -> record

	// Secondary index for webhook lookups
	byExternalSubID map[string]string // externalSubscriptionID -> tenantID
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records:         make(map[string]subscription.Record),
		byExternalSubID: make(map[string]string),
	}
}

// GetByTenant retrieves the record for a tenant.
func (r *MemoryRepository) GetByTenant(_ context.Context, tenantID string) (subscription.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[tenantID]
	if !ok {
		return subscription.Record{}, ErrNotFound
	}
	return rec, nil
}

// GetByExternalID finds the record linked to a provider subscription id.
func (r *MemoryRepository) GetByExternalID(_ context.Context, externalSubID string) (subscription.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenantID, ok := r.byExternalSubID[externalSubID]
	if !ok {
		return subscription.Record{}, ErrNotFound
	}

	rec, ok := r.records[tenantID]
	if !ok {
		return subscription.Record{}, ErrNotFound
	}
	return rec, nil
}

// Upsert creates or replaces the record keyed by tenant id.
func (r *MemoryRepository) Upsert(_ context.Context, rec subscription.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.TenantID == "" {
		return ErrInvalidRecord
	}

	now := time.Now()
	if existing, ok := r.records[rec.TenantID]; ok {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		}
		// Re-point the index if the provider link changed
		if existing.ExternalSubscriptionID != rec.ExternalSubscriptionID {
			delete(r.byExternalSubID, existing.ExternalSubscriptionID)
		}
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	r.records[rec.TenantID] = rec
	if rec.ExternalSubscriptionID != "" {
		r.byExternalSubID[rec.ExternalSubscriptionID] = rec.TenantID
	}

	return nil
}

// MarkStatus updates only the status of an existing record.
func (r *MemoryRepository) MarkStatus(_ context.Context, tenantID string, status subscription.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[tenantID]
	if !ok {
		return ErrNotFound
	}

	rec.Status = status
	rec.UpdatedAt = time.Now()
	r.records[tenantID] = rec
	return nil
}

// ListStale returns up to limit linked records with a matching status whose
// updated_at is before olderThan, oldest first.
func (r *MemoryRepository) ListStale(_ context.Context, olderThan time.Time, statuses []subscription.Status, limit int) ([]subscription.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[subscription.Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var result []subscription.Record
	for _, rec := range r.records {
		if !rec.Linked() || !wanted[rec.Status] {
			continue
		}
		if rec.UpdatedAt.Before(olderThan) {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// StatusCounts returns the number of records per stored status.
func (r *MemoryRepository) StatusCounts(_ context.Context) (map[subscription.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[subscription.Status]int)
	for _, rec := range r.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// CountStaleLinked counts linked records not updated since olderThan.
func (r *MemoryRepository) CountStaleLinked(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.Linked() && rec.UpdatedAt.Before(olderThan) {
			n++
		}
	}
	return n, nil
}

// Close implements Repository.Close (no-op for memory).
func (r *MemoryRepository) Close() error {
	return nil
}
