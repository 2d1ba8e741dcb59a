package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/subscription"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db        *sql.DB
	tableName string
	ownsDB    bool // Whether we created the DB connection (vs. shared)
	metrics   *metrics.Metrics
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &PostgresRepository{
		db:        db,
		tableName: "subscription_records",
		ownsDB:    true,
	}

	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return repo, nil
}

// NewPostgresRepositoryWithDB creates a repository using a shared database connection.
func NewPostgresRepositoryWithDB(db *sql.DB) *PostgresRepository {
	repo := &PostgresRepository{
		db:        db,
		tableName: "subscription_records",
		ownsDB:    false,
	}
	// Attempt to create table, but don't fail if it already exists
	_ = repo.createTable()
	return repo
}

// WithTableName returns a copy of the repository with a custom table name.
func (r *PostgresRepository) WithTableName(name string) *PostgresRepository {
	return &PostgresRepository{
		db:        r.db,
		tableName: name,
		ownsDB:    r.ownsDB,
		metrics:   r.metrics,
	}
}

// WithMetrics enables query timing instrumentation.
func (r *PostgresRepository) WithMetrics(m *metrics.Metrics) *PostgresRepository {
	r.metrics = m
	return r
}

func (r *PostgresRepository) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id                TEXT PRIMARY KEY,
			status                   TEXT NOT NULL,
			external_customer_id     TEXT,
			external_subscription_id TEXT UNIQUE,
			trial_ends_at            TIMESTAMPTZ,
			ends_at                  TIMESTAMPTZ,
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_status
			ON %s(status);
		CREATE INDEX IF NOT EXISTS idx_%s_updated_at
			ON %s(updated_at);
	`, r.tableName,
		r.tableName, r.tableName,
		r.tableName, r.tableName)

	_, err := r.db.Exec(query)
	return err
}

const recordColumns = `tenant_id, status, external_customer_id, external_subscription_id,
		trial_ends_at, ends_at, created_at, updated_at`

// GetByTenant retrieves the record for a tenant.
func (r *PostgresRepository) GetByTenant(ctx context.Context, tenantID string) (subscription.Record, error) {
	defer metrics.MeasureDBQuery(r.metrics, "get_by_tenant", "postgres")()

	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE tenant_id = $1
	`, recordColumns, r.tableName)

	return r.scanOne(ctx, query, tenantID)
}

// GetByExternalID finds the record linked to a provider subscription id.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalSubID string) (subscription.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE external_subscription_id = $1
	`, recordColumns, r.tableName)

	return r.scanOne(ctx, query, externalSubID)
}

// Upsert creates or replaces the record keyed by tenant id.
func (r *PostgresRepository) Upsert(ctx context.Context, rec subscription.Record) error {
	if rec.TenantID == "" {
		return ErrInvalidRecord
	}
	defer metrics.MeasureDBQuery(r.metrics, "upsert", "postgres")()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			tenant_id, status, external_customer_id, external_subscription_id,
			trial_ends_at, ends_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			status = EXCLUDED.status,
			external_customer_id = EXCLUDED.external_customer_id,
			external_subscription_id = EXCLUDED.external_subscription_id,
			trial_ends_at = EXCLUDED.trial_ends_at,
			ends_at = EXCLUDED.ends_at,
			updated_at = NOW()
	`, r.tableName)

	_, err := r.db.ExecContext(ctx, query,
		rec.TenantID, rec.Status, nullString(rec.ExternalCustomerID),
		nullString(rec.ExternalSubscriptionID), nullTime(rec.TrialEndsAt),
		nullTime(rec.EndsAt),
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	return nil
}

// MarkStatus updates only the status of an existing record.
func (r *PostgresRepository) MarkStatus(ctx context.Context, tenantID string, status subscription.Status) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = $2, updated_at = NOW() WHERE tenant_id = $1
	`, r.tableName)

	result, err := r.db.ExecContext(ctx, query, tenantID, status)
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListStale returns up to limit linked records with a matching status whose
// updated_at is before olderThan, oldest first.
func (r *PostgresRepository) ListStale(ctx context.Context, olderThan time.Time, statuses []subscription.Status, limit int) ([]subscription.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := []any{olderThan}
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, s)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE external_subscription_id IS NOT NULL
			AND updated_at < $1
			AND status IN (%s)
		ORDER BY updated_at ASC
		LIMIT $%d
	`, recordColumns, r.tableName, strings.Join(placeholders, ", "), len(statuses)+2)

	return r.scanMany(ctx, query, args...)
}

// StatusCounts returns the number of records per stored status.
func (r *PostgresRepository) StatusCounts(ctx context.Context) (map[subscription.Status]int, error) {
	query := fmt.Sprintf(`
		SELECT status, COUNT(*) FROM %s GROUP BY status
	`, r.tableName)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[subscription.Status]int)
	for rows.Next() {
		var status subscription.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// CountStaleLinked counts linked records not updated since olderThan.
func (r *PostgresRepository) CountStaleLinked(ctx context.Context, olderThan time.Time) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE external_subscription_id IS NOT NULL AND updated_at < $1
	`, r.tableName)

	var n int
	if err := r.db.QueryRowContext(ctx, query, olderThan).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stale: %w", err)
	}
	return n, nil
}

// Close closes the database connection if owned.
func (r *PostgresRepository) Close() error {
	if r.ownsDB && r.db != nil {
		return r.db.Close()
	}
	return nil
}

// scanOne scans a single record from a query.
func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (subscription.Record, error) {
	row := r.db.QueryRowContext(ctx, query, args...)

	var rec subscription.Record
	var extCustomer, extSub sql.NullString
	var trialEndsAt, endsAt sql.NullTime

	err := row.Scan(
		&rec.TenantID, &rec.Status, &extCustomer, &extSub,
		&trialEndsAt, &endsAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return subscription.Record{}, ErrNotFound
	}
	if err != nil {
		return subscription.Record{}, fmt.Errorf("scan: %w", err)
	}

	rec.ExternalCustomerID = extCustomer.String
	rec.ExternalSubscriptionID = extSub.String
	if trialEndsAt.Valid {
		rec.TrialEndsAt = &trialEndsAt.Time
	}
	if endsAt.Valid {
		rec.EndsAt = &endsAt.Time
	}

	return rec, nil
}

// scanMany scans multiple records from a query.
func (r *PostgresRepository) scanMany(ctx context.Context, query string, args ...any) ([]subscription.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var result []subscription.Record
	for rows.Next() {
		var rec subscription.Record
		var extCustomer, extSub sql.NullString
		var trialEndsAt, endsAt sql.NullTime

		err := rows.Scan(
			&rec.TenantID, &rec.Status, &extCustomer, &extSub,
			&trialEndsAt, &endsAt, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		rec.ExternalCustomerID = extCustomer.String
		rec.ExternalSubscriptionID = extSub.String
		if trialEndsAt.Valid {
			rec.TrialEndsAt = &trialEndsAt.Time
		}
		if endsAt.Valid {
			rec.EndsAt = &endsAt.Time
		}

		result = append(result, rec)
	}

	return result, rows.Err()
}

// Helper functions for nullable types
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
