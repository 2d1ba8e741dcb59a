package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidybook/subsync/internal/subscription"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRecord is the BSON shape of a subscription record. _id is the tenant
// id, which gives Upsert its one-record-per-tenant guarantee for free.
type mongoRecord struct {
	TenantID               string     `bson:"_id"`
	Status                 string     `bson:"status"`
	ExternalCustomerID     string     `bson:"external_customer_id,omitempty"`
	ExternalSubscriptionID string     `bson:"external_subscription_id,omitempty"`
	TrialEndsAt            *time.Time `bson:"trial_ends_at,omitempty"`
	EndsAt                 *time.Time `bson:"ends_at,omitempty"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

func (m mongoRecord) toRecord() subscription.Record {
	return subscription.Record{
		TenantID:               m.TenantID,
		Status:                 subscription.Status(m.Status),
		ExternalCustomerID:     m.ExternalCustomerID,
		ExternalSubscriptionID: m.ExternalSubscriptionID,
		TrialEndsAt:            m.TrialEndsAt,
		EndsAt:                 m.EndsAt,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

// MongoRepository implements Repository using MongoDB.
type MongoRepository struct {
	client  *mongo.Client
	records *mongo.Collection
}

// NewMongoRepository creates a new MongoDB-backed repository.
func NewMongoRepository(connectionString, database, collection string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		// The Disconnect error during initialization cleanup is not
		// actionable and would only obscure the original failure.
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	if collection == "" {
		collection = "subscription_records"
	}

	repo := &MongoRepository{
		client:  client,
		records: client.Database(database).Collection(collection),
	}

	if err := repo.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return repo, nil
}

func (r *MongoRepository) createIndexes(ctx context.Context) error {
	_, err := r.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "external_subscription_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"external_subscription_id": bson.M{"$exists": true}},
			),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create record indexes: %w", err)
	}
	return nil
}

// GetByTenant retrieves the record for a tenant.
func (r *MongoRepository) GetByTenant(ctx context.Context, tenantID string) (subscription.Record, error) {
	return r.findOne(ctx, bson.M{"_id": tenantID})
}

// GetByExternalID finds the record linked to a provider subscription id.
func (r *MongoRepository) GetByExternalID(ctx context.Context, externalSubID string) (subscription.Record, error) {
	return r.findOne(ctx, bson.M{"external_subscription_id": externalSubID})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (subscription.Record, error) {
	var m mongoRecord
	err := r.records.FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return subscription.Record{}, ErrNotFound
	}
	if err != nil {
		return subscription.Record{}, fmt.Errorf("find record: %w", err)
	}
	return m.toRecord(), nil
}

// Upsert creates or replaces the record keyed by tenant id.
func (r *MongoRepository) Upsert(ctx context.Context, rec subscription.Record) error {
	if rec.TenantID == "" {
		return ErrInvalidRecord
	}

	now := time.Now()
	set := bson.M{
		"status":     string(rec.Status),
		"updated_at": now,
	}
	unset := bson.M{}
	if rec.ExternalCustomerID != "" {
		set["external_customer_id"] = rec.ExternalCustomerID
	} else {
		unset["external_customer_id"] = ""
	}
	if rec.ExternalSubscriptionID != "" {
		set["external_subscription_id"] = rec.ExternalSubscriptionID
	} else {
		unset["external_subscription_id"] = ""
	}
	if rec.TrialEndsAt != nil {
		set["trial_ends_at"] = *rec.TrialEndsAt
	} else {
		unset["trial_ends_at"] = ""
	}
	if rec.EndsAt != nil {
		set["ends_at"] = *rec.EndsAt
	} else {
		unset["ends_at"] = ""
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.records.UpdateOne(ctx, bson.M{"_id": rec.TenantID}, update, opts)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// MarkStatus updates only the status of an existing record.
func (r *MongoRepository) MarkStatus(ctx context.Context, tenantID string, status subscription.Status) error {
	update := bson.M{"$set": bson.M{
		"status":     string(status),
		"updated_at": time.Now(),
	}}

	result, err := r.records.UpdateOne(ctx, bson.M{"_id": tenantID}, update)
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale returns up to limit linked records with a matching status whose
// updated_at is before olderThan, oldest first.
func (r *MongoRepository) ListStale(ctx context.Context, olderThan time.Time, statuses []subscription.Status, limit int) ([]subscription.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	wanted := make([]string, len(statuses))
	for i, s := range statuses {
		wanted[i] = string(s)
	}

	filter := bson.M{
		"external_subscription_id": bson.M{"$exists": true, "$ne": ""},
		"updated_at":               bson.M{"$lt": olderThan},
		"status":                   bson.M{"$in": wanted},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.records.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find stale records: %w", err)
	}
	defer cursor.Close(ctx)

	var result []subscription.Record
	for cursor.Next(ctx) {
		var m mongoRecord
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		result = append(result, m.toRecord())
	}

	return result, cursor.Err()
}

// StatusCounts returns the number of records per stored status.
func (r *MongoRepository) StatusCounts(ctx context.Context) (map[subscription.Status]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.records.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate status counts: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[subscription.Status]int)
	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode count: %w", err)
		}
		counts[subscription.Status(row.Status)] = row.Count
	}

	return counts, cursor.Err()
}

// CountStaleLinked counts linked records not updated since olderThan.
func (r *MongoRepository) CountStaleLinked(ctx context.Context, olderThan time.Time) (int, error) {
	filter := bson.M{
		"external_subscription_id": bson.M{"$exists": true, "$ne": ""},
		"updated_at":               bson.M{"$lt": olderThan},
	}

	n, err := r.records.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count stale: %w", err)
	}
	return int(n), nil
}

// Close disconnects the client.
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}
