package cloudevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingID          = errors.New("cloudevent missing id")
	ErrMissingSource      = errors.New("cloudevent missing source")
	ErrMissingType        = errors.New("cloudevent missing type")
	ErrMissingSpecVersion = errors.New("cloudevent missing specversion")
)

// EventFactory creates events stamped with a fixed source URI
type EventFactory struct {
	source string
}

// NewEventFactory creates an EventFactory for the given source,
// e.g. "//wms/pickpack-service".
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent builds a CloudEvent of the given type with data serialized as
// JSON.
func (f *EventFactory) CreateEvent(eventType, subject string, data interface{}) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return &Event{
		SpecVersion:     SpecVersion,
		ID:              uuid.New().String(),
		Source:          f.source,
		Type:            eventType,
		Subject:         subject,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            payload,
	}, nil
}

// CreateOrderEvent builds a CloudEvent carrying the order/actor extension
// attributes used by downstream consumers for routing.
func (f *EventFactory) CreateOrderEvent(eventType, orderID, actorID string, data interface{}) (*Event, error) {
	event, err := f.CreateEvent(eventType, "orders/"+orderID, data)
	if err != nil {
		return nil, err
	}
	event.OrderID = orderID
	event.ActorID = actorID
	return event, nil
}
