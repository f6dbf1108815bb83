package cloudevents

import (
	"encoding/json"
	"time"
)

// SpecVersion is the CloudEvents specification version produced by this
// service.
const SpecVersion = "1.0"

// Event types published to fulfillment.pickpack.events
const (
	TypePickClaimed      = "com.wms.pickpack.pick-claimed"
	TypePickCompleted    = "com.wms.pickpack.pick-completed"
	TypePackClaimed      = "com.wms.pickpack.pack-claimed"
	TypePackCompleted    = "com.wms.pickpack.pack-completed"
	TypeWorkflowCreated  = "com.wms.pickpack.workflow-created"
	TypeWorkflowReleased = "com.wms.pickpack.workflow-released"
	TypeWaveCreated      = "com.wms.pickpack.wave-created"
	TypeWaveCompleted    = "com.wms.pickpack.wave-completed"
	TypeWaveCancelled    = "com.wms.pickpack.wave-cancelled"
	TypeManualEvent      = "com.wms.pickpack.manual-event"
)

// Event is a CloudEvents v1.0 envelope with the platform extension
// attributes.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`

	// Extension attributes
	CorrelationID string `json:"correlationid,omitempty"`
	OrderID       string `json:"orderid,omitempty"`
	WaveID        string `json:"waveid,omitempty"`
	ActorID       string `json:"actorid,omitempty"`
}

// Validate checks the required CloudEvents attributes
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.Source == "" {
		return ErrMissingSource
	}
	if e.Type == "" {
		return ErrMissingType
	}
	if e.SpecVersion == "" {
		return ErrMissingSpecVersion
	}
	return nil
}

// Marshal serializes the event to JSON
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
