package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
	"github.com/wms-platform/pickpack-service/pkg/kafka"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/mongodb"
	"github.com/wms-platform/pickpack-service/pkg/outbox"
)

const workflowCollection = "pickpack_workflows"

// errNoMatch signals that the conditional write matched nothing; the caller
// re-reads to classify why.
var errNoMatch = errors.New("conditional write matched no document")

// WorkflowRepository persists workflows in MongoDB. Every lock-sensitive
// mutation is a single FindOneAndUpdate whose filter encodes the guard, so
// two workers racing for the same order can never both win: the database
// evaluates guard and write atomically. Audit records and outbox events are
// written in the same transaction as the workflow change.
type WorkflowRepository struct {
	client     *mongodb.Client
	collection *mongo.Collection
	events     *EventRepository
	outbox     outbox.Repository
	factory    *cloudevents.EventFactory
	logger     *logging.Logger
}

// NewWorkflowRepository creates the repository and ensures its indexes
func NewWorkflowRepository(
	ctx context.Context,
	client *mongodb.Client,
	events *EventRepository,
	outboxRepo outbox.Repository,
	factory *cloudevents.EventFactory,
	logger *logging.Logger,
) (*WorkflowRepository, error) {
	r := &WorkflowRepository{
		client:     client,
		collection: client.Collection(workflowCollection),
		events:     events,
		outbox:     outboxRepo,
		factory:    factory,
		logger:     logger,
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "waveId", Value: 1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create workflow indexes: %w", err)
	}

	return r, nil
}

// Create inserts a new workflow; the orderId unique index rejects duplicates
func (r *WorkflowRepository) Create(ctx context.Context, workflow *domain.Workflow) error {
	_, err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.collection.InsertOne(sessCtx, workflow); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, domain.ErrWorkflowExists
			}
			return nil, fmt.Errorf("failed to insert workflow: %w", err)
		}
		if err := r.persistEvents(sessCtx, workflow.OrderID, workflow.GetDomainEvents(), 0); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	workflow.ClearDomainEvents()
	return nil
}

// FindByOrderID returns the workflow for an order, nil when absent
func (r *WorkflowRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&workflow)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow: %w", err)
	}
	return &workflow, nil
}

// FindAll returns all workflows ordered by creation time
func (r *WorkflowRepository) FindAll(ctx context.Context) ([]*domain.Workflow, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(mongodb.SortAsc("createdAt")))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer cursor.Close(ctx)

	var workflows []*domain.Workflow
	if err := cursor.All(ctx, &workflows); err != nil {
		return nil, fmt.Errorf("failed to decode workflows: %w", err)
	}
	return workflows, nil
}

// FindByWaveID returns the workflows claimed into a wave
func (r *WorkflowRepository) FindByWaveID(ctx context.Context, waveID string) ([]*domain.Workflow, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"waveId": waveID}, options.Find().SetSort(mongodb.SortAsc("createdAt")))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by wave: %w", err)
	}
	defer cursor.Close(ctx)

	var workflows []*domain.Workflow
	if err := cursor.All(ctx, &workflows); err != nil {
		return nil, fmt.Errorf("failed to decode workflows: %w", err)
	}
	return workflows, nil
}

// Claim atomically acquires or renews the lock on an order. The guard filter
// admits the write only when the stage matches the role and the lock is
// free, already held by the actor, or expired. There is no read before the
// write.
func (r *WorkflowRepository) Claim(ctx context.Context, orderID, actor string, role domain.Role, ttl time.Duration) (*domain.ClaimResult, error) {
	if actor == "" {
		return nil, domain.ErrActorRequired
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	var statuses []domain.WorkflowStatus
	var target domain.WorkflowStatus
	if role == domain.RolePicker {
		statuses = []domain.WorkflowStatus{domain.StatusPending, domain.StatusPicking}
		target = domain.StatusPicking
	} else {
		statuses = []domain.WorkflowStatus{domain.StatusReadyToPack, domain.StatusPacking}
		target = domain.StatusPacking
	}

	filter := bson.M{
		"orderId": orderID,
		"status":  bson.M{"$in": statuses},
		"$or": bson.A{
			bson.M{"lockedBy": ""},
			bson.M{"lockedBy": actor},
			bson.M{"lockExpiresAt": bson.M{"$lt": now}},
		},
	}
	update := bson.M{"$set": bson.M{
		"status":        target,
		"lockedBy":      actor,
		"lockExpiresAt": expiresAt,
		"updatedAt":     now,
	}}

	result, err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		before, err := r.conditionalUpdate(sessCtx, filter, update)
		if err != nil {
			return nil, err
		}

		// Replay the transition on the pre-image to derive the outcome and
		// events; the matched filter guarantees the guard held.
		outcome, err := before.Claim(actor, role, ttl, now)
		if err != nil {
			return nil, fmt.Errorf("claim replay diverged from guard filter: %w", err)
		}

		if err := r.persistEvents(sessCtx, orderID, before.GetDomainEvents(), 0); err != nil {
			return nil, err
		}
		before.ClearDomainEvents()

		return &domain.ClaimResult{Workflow: before, Outcome: outcome}, nil
	})
	if err != nil {
		if errors.Is(err, errNoMatch) {
			return nil, r.classifyFailure(ctx, orderID, now, func(w *domain.Workflow) error {
				_, err := w.Claim(actor, role, ttl, now)
				return err
			})
		}
		return nil, err
	}

	return result.(*domain.ClaimResult), nil
}

// Release gives up the lock and reverts one stage. The expected current
// status is part of the filter, so a concurrent transition makes the write
// miss instead of corrupting state.
func (r *WorkflowRepository) Release(ctx context.Context, orderID, actor string) (*domain.Workflow, error) {
	if actor == "" {
		return nil, domain.ErrActorRequired
	}

	now := time.Now().UTC()

	current, err := r.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrWorkflowNotFound
	}

	var target domain.WorkflowStatus
	switch current.Status {
	case domain.StatusPicking:
		target = domain.StatusPending
	case domain.StatusPacking:
		target = domain.StatusReadyToPack
	default:
		// Nothing held; release is an idempotent no-op.
		return current, nil
	}

	filter := bson.M{
		"orderId": orderID,
		"status":  current.Status,
		"$or": bson.A{
			bson.M{"lockedBy": ""},
			bson.M{"lockedBy": actor},
			bson.M{"lockExpiresAt": bson.M{"$lt": now}},
		},
	}
	update := bson.M{
		"$set":   bson.M{"status": target, "lockedBy": "", "updatedAt": now},
		"$unset": bson.M{"lockExpiresAt": ""},
	}

	result, err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		before, err := r.conditionalUpdate(sessCtx, filter, update)
		if err != nil {
			return nil, err
		}

		if _, err := before.Release(actor, now); err != nil {
			return nil, fmt.Errorf("release replay diverged from guard filter: %w", err)
		}

		if err := r.persistEvents(sessCtx, orderID, before.GetDomainEvents(), 0); err != nil {
			return nil, err
		}
		before.ClearDomainEvents()

		return before, nil
	})
	if err != nil {
		if errors.Is(err, errNoMatch) {
			return nil, r.classifyFailure(ctx, orderID, now, func(w *domain.Workflow) error {
				_, err := w.Release(actor, now)
				return err
			})
		}
		return nil, err
	}

	return result.(*domain.Workflow), nil
}

// CompletePick finishes picking. Only the holder of an unexpired lock
// matches the filter.
func (r *WorkflowRepository) CompletePick(ctx context.Context, orderID, actor, notes string, itemCount int) (*domain.Workflow, error) {
	if actor == "" {
		return nil, domain.ErrActorRequired
	}

	now := time.Now().UTC()

	filter := bson.M{
		"orderId":       orderID,
		"status":        domain.StatusPicking,
		"lockedBy":      actor,
		"lockExpiresAt": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":      domain.StatusReadyToPack,
			"lockedBy":    "",
			"pickerNotes": notes,
			"updatedAt":   now,
		},
		"$unset": bson.M{"lockExpiresAt": ""},
	}

	result, err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		before, err := r.conditionalUpdate(sessCtx, filter, update)
		if err != nil {
			return nil, err
		}

		if err := before.CompletePick(actor, notes, now); err != nil {
			return nil, fmt.Errorf("complete-pick replay diverged from guard filter: %w", err)
		}

		if err := r.persistEvents(sessCtx, orderID, before.GetDomainEvents(), itemCount); err != nil {
			return nil, err
		}
		before.ClearDomainEvents()

		return before, nil
	})
	if err != nil {
		if errors.Is(err, errNoMatch) {
			return nil, r.classifyFailure(ctx, orderID, now, func(w *domain.Workflow) error {
				return w.CompletePick(actor, notes, now)
			})
		}
		return nil, err
	}

	return result.(*domain.Workflow), nil
}

// CompletePack finishes packing and records the shipment
func (r *WorkflowRepository) CompletePack(ctx context.Context, orderID, actor string, shipment domain.Shipment, itemCount int) (*domain.Workflow, error) {
	if actor == "" {
		return nil, domain.ErrActorRequired
	}

	now := time.Now().UTC()

	filter := bson.M{
		"orderId":       orderID,
		"status":        domain.StatusPacking,
		"lockedBy":      actor,
		"lockExpiresAt": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":         domain.StatusComplete,
			"lockedBy":       "",
			"cartonId":       shipment.CartonID,
			"weightKg":       shipment.WeightKg,
			"trackingNumber": shipment.TrackingNumber,
			"packerNotes":    shipment.Notes,
			"updatedAt":      now,
		},
		"$unset": bson.M{"lockExpiresAt": ""},
	}

	result, err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		before, err := r.conditionalUpdate(sessCtx, filter, update)
		if err != nil {
			return nil, err
		}

		if err := before.CompletePack(actor, shipment, now); err != nil {
			return nil, fmt.Errorf("complete-pack replay diverged from guard filter: %w", err)
		}

		if err := r.persistEvents(sessCtx, orderID, before.GetDomainEvents(), itemCount); err != nil {
			return nil, err
		}
		before.ClearDomainEvents()

		return before, nil
	})
	if err != nil {
		if errors.Is(err, errNoMatch) {
			return nil, r.classifyFailure(ctx, orderID, now, func(w *domain.Workflow) error {
				return w.CompletePack(actor, shipment, now)
			})
		}
		return nil, err
	}

	return result.(*domain.Workflow), nil
}

// AssignWave stamps the wave id onto the claimed workflows
func (r *WorkflowRepository) AssignWave(ctx context.Context, orderIDs []string, waveID string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	_, err := r.collection.UpdateMany(ctx,
		bson.M{"orderId": bson.M{"$in": orderIDs}},
		bson.M{"$set": bson.M{"waveId": waveID, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to assign wave: %w", err)
	}
	return nil
}

// conditionalUpdate runs the guarded FindOneAndUpdate and returns the
// pre-image of the document.
func (r *WorkflowRepository) conditionalUpdate(sessCtx mongo.SessionContext, filter, update bson.M) (*domain.Workflow, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before domain.Workflow
	err := r.collection.FindOneAndUpdate(sessCtx, filter, update, opts).Decode(&before)
	if err == mongo.ErrNoDocuments {
		return nil, errNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	return &before, nil
}

// classifyFailure re-reads the workflow after a missed conditional write and
// replays the attempted operation on the current state to produce the
// precise domain error. When the replay would now succeed the state changed
// under us, which still reads as a lock conflict to the caller.
func (r *WorkflowRepository) classifyFailure(ctx context.Context, orderID string, now time.Time, replay func(*domain.Workflow) error) error {
	current, err := r.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrWorkflowNotFound
	}

	copied := *current
	if replayErr := replay(&copied); replayErr != nil {
		return replayErr
	}
	return domain.ErrLockHeld
}

// persistEvents writes audit records and outbox entries for the aggregate's
// pending domain events inside the current transaction.
func (r *WorkflowRepository) persistEvents(sessCtx mongo.SessionContext, orderID string, events []domain.DomainEvent, itemCount int) error {
	var outboxEvents []*outbox.OutboxEvent

	for _, event := range events {
		if record := auditRecord(orderID, event, itemCount); record != nil {
			if err := r.events.Append(sessCtx, record); err != nil {
				return err
			}
		}

		cloudEvent, err := r.cloudEvent(orderID, event)
		if err != nil {
			return err
		}
		outboxEvent, err := outbox.NewOutboxEvent("workflow", orderID, kafka.Topics.PickPackEvents, cloudEvent)
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

// auditRecord maps a domain event to its audit log record; lifecycle events
// that are not part of the audit vocabulary return nil.
func auditRecord(orderID string, event domain.DomainEvent, itemCount int) *domain.WorkflowEvent {
	switch e := event.(type) {
	case *domain.PickClaimedEvent:
		record, _ := domain.NewWorkflowEvent(orderID, domain.EventClaimPick, e.Actor, e.At)
		if e.Takeover {
			record.WithMetadata(map[string]string{"takeover": "true"})
		}
		return record
	case *domain.PickCompletedEvent:
		record, _ := domain.NewWorkflowEvent(orderID, domain.EventCompletePick, e.Actor, e.At)
		record.WithTotalItems(itemCount)
		if e.Notes != "" {
			record.WithMetadata(map[string]string{"notes": e.Notes})
		}
		return record
	case *domain.PackClaimedEvent:
		record, _ := domain.NewWorkflowEvent(orderID, domain.EventClaimPack, e.Actor, e.At)
		if e.Takeover {
			record.WithMetadata(map[string]string{"takeover": "true"})
		}
		return record
	case *domain.PackCompletedEvent:
		record, _ := domain.NewWorkflowEvent(orderID, domain.EventCompletePack, e.Actor, e.At)
		record.WithTotalItems(itemCount)
		metadata := map[string]string{"cartonId": e.CartonID, "weightKg": strconv.FormatFloat(e.WeightKg, 'f', -1, 64)}
		if e.TrackingNumber != "" {
			metadata["trackingNumber"] = e.TrackingNumber
		}
		record.WithMetadata(metadata)
		return record
	case *domain.WorkflowReleasedEvent:
		record, _ := domain.NewWorkflowEvent(orderID, domain.EventRelease, e.Actor, e.At)
		record.WithMetadata(map[string]string{"from": string(e.From), "to": string(e.To)})
		return record
	default:
		return nil
	}
}

// cloudEvent wraps a domain event for publication
func (r *WorkflowRepository) cloudEvent(orderID string, event domain.DomainEvent) (*cloudevents.Event, error) {
	var eventType, actor string
	switch e := event.(type) {
	case *domain.WorkflowCreatedEvent:
		eventType = cloudevents.TypeWorkflowCreated
	case *domain.PickClaimedEvent:
		eventType, actor = cloudevents.TypePickClaimed, e.Actor
	case *domain.PickCompletedEvent:
		eventType, actor = cloudevents.TypePickCompleted, e.Actor
	case *domain.PackClaimedEvent:
		eventType, actor = cloudevents.TypePackClaimed, e.Actor
	case *domain.PackCompletedEvent:
		eventType, actor = cloudevents.TypePackCompleted, e.Actor
	case *domain.WorkflowReleasedEvent:
		eventType, actor = cloudevents.TypeWorkflowReleased, e.Actor
	default:
		eventType = cloudevents.TypeManualEvent
	}

	return r.factory.CreateOrderEvent(eventType, orderID, actor, event)
}
