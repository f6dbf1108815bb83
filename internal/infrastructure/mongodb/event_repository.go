package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/mongodb"
)

const eventCollection = "pickpack_events"

// EventRepository is the append-only audit log. Records are inserted and
// queried, never updated or deleted.
type EventRepository struct {
	collection *mongo.Collection
}

// NewEventRepository creates the repository and ensures its indexes
func NewEventRepository(ctx context.Context, client *mongodb.Client) (*EventRepository, error) {
	r := &EventRepository{collection: client.Collection(eventCollection)}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "eventType", Value: 1}, {Key: "createdAt", Value: 1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create event indexes: %w", err)
	}

	return r, nil
}

// Append inserts one record
func (r *EventRepository) Append(ctx context.Context, event *domain.WorkflowEvent) error {
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// FindByOrderID returns the full event history of an order, oldest first
func (r *EventRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.WorkflowEvent, error) {
	return r.find(ctx, bson.M{"orderId": orderID})
}

// FindSince returns all events at or after since, oldest first
func (r *EventRepository) FindSince(ctx context.Context, since time.Time) ([]*domain.WorkflowEvent, error) {
	return r.find(ctx, bson.M{"createdAt": bson.M{"$gte": since}})
}

func (r *EventRepository) find(ctx context.Context, filter bson.M) ([]*domain.WorkflowEvent, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(mongodb.SortAsc("createdAt")))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.WorkflowEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}
