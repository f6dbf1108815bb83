package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Audit event types recorded in the append-only workflow event log
const (
	EventClaimPick    = "claim_pick"
	EventStartPick    = "start_pick"
	EventCompletePick = "complete_pick"
	EventClaimPack    = "claim_pack"
	EventStartPack    = "start_pack"
	EventCompletePack = "complete_pack"
	EventRelease      = "release"
	EventMessage      = "message"
)

// ErrInvalidEventType is returned for event types outside the known set
var ErrInvalidEventType = errors.New("invalid event type")

var validEventTypes = map[string]bool{
	EventClaimPick:    true,
	EventStartPick:    true,
	EventCompletePick: true,
	EventClaimPack:    true,
	EventStartPack:    true,
	EventCompletePack: true,
	EventRelease:      true,
	EventMessage:      true,
}

// ValidEventType reports whether t is a known audit event type
func ValidEventType(t string) bool {
	return validEventTypes[t]
}

// WorkflowEvent is one record in the append-only audit log. Records are
// never updated or deleted; the stats aggregator derives all throughput
// figures from this log alone.
type WorkflowEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	EventID    string             `bson:"eventId"`
	OrderID    string             `bson:"orderId"`
	EventType  string             `bson:"eventType"`
	ActorID    string             `bson:"actorId"`
	TotalItems int                `bson:"totalItems,omitempty"`
	Metadata   map[string]string  `bson:"metadata,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt"`
}

// NewWorkflowEvent creates an audit log record
func NewWorkflowEvent(orderID, eventType, actorID string, at time.Time) (*WorkflowEvent, error) {
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if !ValidEventType(eventType) {
		return nil, ErrInvalidEventType
	}

	return &WorkflowEvent{
		EventID:   uuid.New().String(),
		OrderID:   orderID,
		EventType: eventType,
		ActorID:   actorID,
		CreatedAt: at,
	}, nil
}

// WithMetadata attaches metadata to the record
func (e *WorkflowEvent) WithMetadata(metadata map[string]string) *WorkflowEvent {
	e.Metadata = metadata
	return e
}

// WithTotalItems attaches the order item count used for throughput math
func (e *WorkflowEvent) WithTotalItems(count int) *WorkflowEvent {
	e.TotalItems = count
	return e
}
