package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tidybook/subsync/internal/subscription"
)

// Common errors returned by repository operations.
var (
	ErrNotFound      = errors.New("subscription record not found")
	ErrInvalidRecord = errors.New("invalid subscription record")
)

// Repository defines the interface for subscription record storage.
// One record per tenant; Upsert is the only way records come into being.
type Repository interface {
	// GetByTenant retrieves the record for a tenant.
	GetByTenant(ctx context.Context, tenantID string) (subscription.Record, error)

	// GetByExternalID finds the record linked to a billing-provider
	// subscription id. Used by webhook ingestion.
	GetByExternalID(ctx context.Context, externalSubID string) (subscription.Record, error)

	// Upsert creates or replaces the record keyed by tenant id. Idempotent:
	// re-applying the same record leaves the row identical apart from
	// updated_at.
	Upsert(ctx context.Context, rec subscription.Record) error

	// MarkStatus updates only the status of an existing record. Used for
	// expiry write-back; idempotent.
	MarkStatus(ctx context.Context, tenantID string, status subscription.Status) error

	// ListStale returns up to limit linked records whose status is in
	// statuses and whose updated_at is before olderThan, oldest first.
	ListStale(ctx context.Context, olderThan time.Time, statuses []subscription.Status, limit int) ([]subscription.Record, error)

	// StatusCounts returns the number of records per stored status.
	StatusCounts(ctx context.Context) (map[subscription.Status]int, error)

	// CountStaleLinked counts linked records not updated since olderThan,
	// regardless of status. Feeds the health report.
	CountStaleLinked(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the repository.
	Close() error
}

// Config holds configuration for creating a repository.
type Config struct {
	Backend     string  // "memory", "postgres" or "mongodb"
	PostgresURL string  // Connection string for postgres
	PostgresDB  *sql.DB // Optional shared database connection
	MongoURL    string  // Connection string for mongodb
	MongoDB     string  // Database name for mongodb
	TableName   string  // Custom table/collection name (default: "subscription_records")
}

// New creates a repository based on configuration.
func New(cfg Config) (Repository, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryRepository(), nil
	case "postgres":
		if cfg.PostgresDB != nil {
			repo := NewPostgresRepositoryWithDB(cfg.PostgresDB)
			if cfg.TableName != "" {
				repo = repo.WithTableName(cfg.TableName)
			}
			return repo, nil
		}
		if cfg.PostgresURL == "" {
			return nil, errors.New("postgres_url required for postgres backend")
		}
		repo, err := NewPostgresRepository(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if cfg.TableName != "" {
			repo = repo.WithTableName(cfg.TableName)
		}
		return repo, nil
	case "mongodb":
		if cfg.MongoURL == "" {
			return nil, errors.New("mongo_url required for mongodb backend")
		}
		return NewMongoRepository(cfg.MongoURL, cfg.MongoDB, cfg.TableName)
	default:
		return nil, errors.New("unknown store backend: " + cfg.Backend)
	}
}
