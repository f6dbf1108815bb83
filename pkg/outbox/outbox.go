package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
)

// OutboxEvent is an event persisted in the same transaction as the aggregate
// change that produced it, awaiting publication to Kafka.
type OutboxEvent struct {
	ID            string     `bson:"_id"`
	AggregateType string     `bson:"aggregateType"`
	AggregateID   string     `bson:"aggregateId"`
	EventType     string     `bson:"eventType"`
	Topic         string     `bson:"topic"`
	Payload       []byte     `bson:"payload"`
	CreatedAt     time.Time  `bson:"createdAt"`
	PublishedAt   *time.Time `bson:"publishedAt,omitempty"`
	RetryCount    int        `bson:"retryCount"`
	LastError     string     `bson:"lastError,omitempty"`
}

// NewOutboxEvent wraps a CloudEvent for transactional persistence
func NewOutboxEvent(aggregateType, aggregateID, topic string, event *cloudevents.Event) (*OutboxEvent, error) {
	payload, err := event.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cloudevent: %w", err)
	}

	return &OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// ToCloudEvent deserializes the stored payload back into a CloudEvent
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.Event, error) {
	event, err := cloudevents.Unmarshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox payload: %w", err)
	}
	return event, nil
}
