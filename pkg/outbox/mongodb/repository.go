package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/pickpack-service/pkg/outbox"
)

const collectionName = "outbox_events"

// Repository is the MongoDB implementation of outbox.Repository
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates the repository and ensures its indexes
func NewRepository(ctx context.Context, db *mongo.Database) (*Repository, error) {
	r := &Repository{collection: db.Collection(collectionName)}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			// Purge published events after 7 days
			Keys:    bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(7 * 24 * 3600).SetName("ttl_published"),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create outbox indexes: %w", err)
	}

	return r, nil
}

// Save persists one event
func (r *Repository) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

// SaveAll persists a batch of events
func (r *Repository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, len(events))
	for i, e := range events {
		docs[i] = e
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// SaveAllInSession persists a batch of events within an existing transaction
func (r *Repository) SaveAllInSession(sessCtx mongo.SessionContext, events []*outbox.OutboxEvent) error {
	return r.SaveAll(sessCtx, events)
}

// FindUnpublished returns up to limit unpublished events, oldest first
func (r *Repository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"publishedAt": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return events, nil
}

// MarkPublished stamps publishedAt on the event
func (r *Repository) MarkPublished(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"publishedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry count and records the error
func (r *Repository) IncrementRetry(ctx context.Context, id string, lastError string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"retryCount": 1},
			"$set": bson.M{"lastError": lastError},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}
