package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
	"github.com/wms-platform/pickpack-service/pkg/kafka"
	"github.com/wms-platform/pickpack-service/pkg/mongodb"
	"github.com/wms-platform/pickpack-service/pkg/outbox"
)

const waveCollection = "pick_waves"

// WaveRepository persists pick waves with their lifecycle events going
// through the outbox.
type WaveRepository struct {
	client     *mongodb.Client
	collection *mongo.Collection
	outbox     outbox.Repository
	factory    *cloudevents.EventFactory
}

// NewWaveRepository creates the repository and ensures its indexes
func NewWaveRepository(ctx context.Context, client *mongodb.Client, outboxRepo outbox.Repository, factory *cloudevents.EventFactory) (*WaveRepository, error) {
	r := &WaveRepository{
		client:     client,
		collection: client.Collection(waveCollection),
		outbox:     outboxRepo,
		factory:    factory,
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "waveId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "orderIds", Value: 1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create wave indexes: %w", err)
	}

	return r, nil
}

// Save upserts the wave and writes its pending events to the outbox in one
// transaction.
func (r *WaveRepository) Save(ctx context.Context, wave *domain.PickWave) error {
	_, err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		filter := bson.M{"waveId": wave.WaveID}
		update := bson.M{"$set": bson.M{
			"waveId":       wave.WaveID,
			"pickerId":     wave.PickerID,
			"orderIds":     wave.OrderIDs,
			"orderItems":   wave.OrderItems,
			"pickedOrders": wave.PickedOrders,
			"totalItems":   wave.TotalItems,
			"pickedItems":  wave.PickedItems,
			"status":       wave.Status,
			"createdAt":    wave.CreatedAt,
			"updatedAt":    wave.UpdatedAt,
			"completedAt":  wave.CompletedAt,
		}}

		if _, err := r.collection.UpdateOne(sessCtx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return nil, fmt.Errorf("failed to save wave: %w", err)
		}

		if err := r.persistEvents(sessCtx, wave); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	wave.ClearDomainEvents()
	return nil
}

// FindByWaveID returns one wave, nil when absent
func (r *WaveRepository) FindByWaveID(ctx context.Context, waveID string) (*domain.PickWave, error) {
	var wave domain.PickWave
	err := r.collection.FindOne(ctx, bson.M{"waveId": waveID}).Decode(&wave)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wave: %w", err)
	}
	return &wave, nil
}

// FindByStatus returns waves in a status, newest first
func (r *WaveRepository) FindByStatus(ctx context.Context, status domain.WaveStatus) ([]*domain.PickWave, error) {
	return r.find(ctx, bson.M{"status": status})
}

// FindAll returns all waves, newest first
func (r *WaveRepository) FindAll(ctx context.Context) ([]*domain.PickWave, error) {
	return r.find(ctx, bson.M{})
}

// FindActiveByOrderID returns the picking wave containing an order, if any
func (r *WaveRepository) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.PickWave, error) {
	var wave domain.PickWave
	err := r.collection.FindOne(ctx, bson.M{
		"status":   domain.WaveStatusPicking,
		"orderIds": orderID,
	}).Decode(&wave)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wave by order: %w", err)
	}
	return &wave, nil
}

func (r *WaveRepository) find(ctx context.Context, filter bson.M) ([]*domain.PickWave, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(mongodb.SortDesc("createdAt")))
	if err != nil {
		return nil, fmt.Errorf("failed to query waves: %w", err)
	}
	defer cursor.Close(ctx)

	var waves []*domain.PickWave
	if err := cursor.All(ctx, &waves); err != nil {
		return nil, fmt.Errorf("failed to decode waves: %w", err)
	}
	return waves, nil
}

func (r *WaveRepository) persistEvents(sessCtx mongo.SessionContext, wave *domain.PickWave) error {
	events := wave.GetDomainEvents()
	if len(events) == 0 {
		return nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		var eventType string
		switch event.(type) {
		case *domain.WaveCreatedEvent:
			eventType = cloudevents.TypeWaveCreated
		case *domain.WaveCompletedEvent:
			eventType = cloudevents.TypeWaveCompleted
		case *domain.WaveCancelledEvent:
			eventType = cloudevents.TypeWaveCancelled
		default:
			continue
		}

		cloudEvent, err := r.factory.CreateEvent(eventType, "waves/"+wave.WaveID, event)
		if err != nil {
			return err
		}
		cloudEvent.WaveID = wave.WaveID
		cloudEvent.ActorID = wave.PickerID

		outboxEvent, err := outbox.NewOutboxEvent("wave", wave.WaveID, kafka.Topics.PickPackEvents, cloudEvent)
		if err != nil {
			return err
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	if len(outboxEvents) == 0 {
		return nil
	}
	return r.outbox.SaveAll(sessCtx, outboxEvents)
}
