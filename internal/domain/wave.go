package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WaveStatus represents the lifecycle state of a pick wave
type WaveStatus string

const (
	WaveStatusPicking   WaveStatus = "picking"
	WaveStatusCompleted WaveStatus = "completed"
	WaveStatusCancelled WaveStatus = "cancelled"
)

// Wave errors
var (
	ErrWaveNotFound  = errors.New("wave not found")
	ErrWaveEmpty     = errors.New("wave must contain at least one order")
	ErrWaveNotActive = errors.New("wave is not active")
	ErrWaveCompleted = errors.New("wave is already completed")
)

// PickWave groups the orders a picker claimed in one batch. A wave starts in
// picking because its orders are already locked when it is created; it
// completes automatically when the last order's pick finishes.
type PickWave struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	WaveID       string             `bson:"waveId"`
	PickerID     string             `bson:"pickerId"`
	OrderIDs     []string           `bson:"orderIds"`
	OrderItems   map[string]int     `bson:"orderItems"`
	PickedOrders []string           `bson:"pickedOrders"`
	TotalItems   int                `bson:"totalItems"`
	PickedItems  int                `bson:"pickedItems"`
	Status       WaveStatus         `bson:"status"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
	CompletedAt  *time.Time         `bson:"completedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewPickWave creates a wave over the successfully claimed orders.
// orderItems maps each order to its item count; unknown counts may be zero.
func NewPickWave(pickerID string, orderIDs []string, orderItems map[string]int) (*PickWave, error) {
	if pickerID == "" {
		return nil, ErrActorRequired
	}
	if len(orderIDs) == 0 {
		return nil, ErrWaveEmpty
	}

	total := 0
	items := make(map[string]int, len(orderIDs))
	for _, id := range orderIDs {
		items[id] = orderItems[id]
		total += orderItems[id]
	}

	now := time.Now().UTC()
	w := &PickWave{
		WaveID:     "WAVE-" + uuid.New().String(),
		PickerID:   pickerID,
		OrderIDs:   orderIDs,
		OrderItems: items,
		TotalItems: total,
		Status:     WaveStatusPicking,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	w.AddDomainEvent(&WaveCreatedEvent{
		WaveID:     w.WaveID,
		PickerID:   pickerID,
		OrderIDs:   orderIDs,
		TotalItems: total,
		At:         now,
	})

	return w, nil
}

// Contains reports whether the wave includes orderID
func (w *PickWave) Contains(orderID string) bool {
	for _, id := range w.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// RecordOrderPicked marks one order of the wave as picked. Recording the
// same order twice is a no-op. When the last order is recorded the wave
// completes.
func (w *PickWave) RecordOrderPicked(orderID string, now time.Time) error {
	if w.Status != WaveStatusPicking {
		return ErrWaveNotActive
	}
	if !w.Contains(orderID) {
		return ErrWorkflowNotFound
	}
	for _, id := range w.PickedOrders {
		if id == orderID {
			return nil
		}
	}

	w.PickedOrders = append(w.PickedOrders, orderID)
	w.PickedItems += w.OrderItems[orderID]
	w.UpdatedAt = now

	if len(w.PickedOrders) == len(w.OrderIDs) {
		w.Status = WaveStatusCompleted
		w.CompletedAt = &now
		w.AddDomainEvent(&WaveCompletedEvent{WaveID: w.WaveID, At: now})
	}

	return nil
}

// Cancel abandons a wave before completion. Cancelling twice is a no-op.
func (w *PickWave) Cancel(reason string, now time.Time) error {
	switch w.Status {
	case WaveStatusCompleted:
		return ErrWaveCompleted
	case WaveStatusCancelled:
		return nil
	}

	w.Status = WaveStatusCancelled
	w.UpdatedAt = now
	w.AddDomainEvent(&WaveCancelledEvent{WaveID: w.WaveID, Reason: reason, At: now})
	return nil
}

// Progress returns the picked fraction of the wave's items
func (w *PickWave) Progress() float64 {
	if w.TotalItems == 0 {
		if len(w.OrderIDs) == 0 {
			return 0
		}
		return float64(len(w.PickedOrders)) / float64(len(w.OrderIDs))
	}
	return float64(w.PickedItems) / float64(w.TotalItems)
}

// RemainingOrders returns the orders not yet picked
func (w *PickWave) RemainingOrders() []string {
	picked := make(map[string]bool, len(w.PickedOrders))
	for _, id := range w.PickedOrders {
		picked[id] = true
	}

	var remaining []string
	for _, id := range w.OrderIDs {
		if !picked[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// AddDomainEvent appends a domain event to the aggregate
func (w *PickWave) AddDomainEvent(event DomainEvent) {
	w.DomainEvents = append(w.DomainEvents, event)
}

// ClearDomainEvents clears pending domain events after persistence
func (w *PickWave) ClearDomainEvents() {
	w.DomainEvents = nil
}

// GetDomainEvents returns the pending domain events
func (w *PickWave) GetDomainEvents() []DomainEvent {
	return w.DomainEvents
}
