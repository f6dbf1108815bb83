package domain

import "time"

// DomainEvent is raised by aggregates and persisted through the outbox
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// WorkflowCreatedEvent is raised when a workflow enters the queue
type WorkflowCreatedEvent struct {
	WorkflowID string   `json:"workflowId"`
	OrderID    string   `json:"orderId"`
	Priority   Priority `json:"priority"`
	Rush       bool     `json:"rush"`
	At         time.Time `json:"at"`
}

func (e *WorkflowCreatedEvent) EventType() string     { return "workflow_created" }
func (e *WorkflowCreatedEvent) OccurredAt() time.Time { return e.At }

// PickClaimedEvent is raised when a picker acquires the lock. Renewals do
// not raise it; takeovers of expired locks do.
type PickClaimedEvent struct {
	OrderID   string    `json:"orderId"`
	Actor     string    `json:"actor"`
	Takeover  bool      `json:"takeover,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	At        time.Time `json:"at"`
}

func (e *PickClaimedEvent) EventType() string     { return EventClaimPick }
func (e *PickClaimedEvent) OccurredAt() time.Time { return e.At }

// PickCompletedEvent is raised when the picking stage finishes
type PickCompletedEvent struct {
	OrderID string    `json:"orderId"`
	Actor   string    `json:"actor"`
	Notes   string    `json:"notes,omitempty"`
	At      time.Time `json:"at"`
}

func (e *PickCompletedEvent) EventType() string     { return EventCompletePick }
func (e *PickCompletedEvent) OccurredAt() time.Time { return e.At }

// PackClaimedEvent is raised when a packer acquires the lock
type PackClaimedEvent struct {
	OrderID   string    `json:"orderId"`
	Actor     string    `json:"actor"`
	Takeover  bool      `json:"takeover,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	At        time.Time `json:"at"`
}

func (e *PackClaimedEvent) EventType() string     { return EventClaimPack }
func (e *PackClaimedEvent) OccurredAt() time.Time { return e.At }

// PackCompletedEvent is raised when the packing stage finishes and the
// workflow becomes terminal.
type PackCompletedEvent struct {
	OrderID        string    `json:"orderId"`
	Actor          string    `json:"actor"`
	CartonID       string    `json:"cartonId"`
	WeightKg       float64   `json:"weightKg"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	At             time.Time `json:"at"`
}

func (e *PackCompletedEvent) EventType() string     { return EventCompletePack }
func (e *PackCompletedEvent) OccurredAt() time.Time { return e.At }

// WorkflowReleasedEvent is raised when a lock is given up and the workflow
// reverts one stage.
type WorkflowReleasedEvent struct {
	OrderID string         `json:"orderId"`
	Actor   string         `json:"actor"`
	From    WorkflowStatus `json:"from"`
	To      WorkflowStatus `json:"to"`
	At      time.Time      `json:"at"`
}

func (e *WorkflowReleasedEvent) EventType() string     { return EventRelease }
func (e *WorkflowReleasedEvent) OccurredAt() time.Time { return e.At }

// WaveCreatedEvent is raised when a batch claim produces a pick wave
type WaveCreatedEvent struct {
	WaveID     string    `json:"waveId"`
	PickerID   string    `json:"pickerId"`
	OrderIDs   []string  `json:"orderIds"`
	TotalItems int       `json:"totalItems"`
	At         time.Time `json:"at"`
}

func (e *WaveCreatedEvent) EventType() string     { return "wave_created" }
func (e *WaveCreatedEvent) OccurredAt() time.Time { return e.At }

// WaveCompletedEvent is raised when every order in a wave has been picked
type WaveCompletedEvent struct {
	WaveID string    `json:"waveId"`
	At     time.Time `json:"at"`
}

func (e *WaveCompletedEvent) EventType() string     { return "wave_completed" }
func (e *WaveCompletedEvent) OccurredAt() time.Time { return e.At }

// WaveCancelledEvent is raised when a wave is cancelled before completion
type WaveCancelledEvent struct {
	WaveID string    `json:"waveId"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func (e *WaveCancelledEvent) EventType() string     { return "wave_cancelled" }
func (e *WaveCancelledEvent) OccurredAt() time.Time { return e.At }
