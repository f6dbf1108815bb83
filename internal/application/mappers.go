package application

import (
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
)

// ToWorkflowDTO maps a workflow to its API shape, resolving the lock with
// lazy expiry at now.
func ToWorkflowDTO(w *domain.Workflow, now time.Time) WorkflowDTO {
	return WorkflowDTO{
		WorkflowID:     w.WorkflowID,
		OrderID:        w.OrderID,
		Status:         string(w.Status),
		Priority:       string(w.Priority),
		Rush:           w.Rush,
		WaveID:         w.WaveID,
		LockInfo:       w.LockInfo(now),
		PickerNotes:    w.PickerNotes,
		PackerNotes:    w.PackerNotes,
		CartonID:       w.CartonID,
		WeightKg:       w.WeightKg,
		TrackingNumber: w.TrackingNumber,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

// ToQueueEntryDTO maps a workflow to a queue entry
func ToQueueEntryDTO(w *domain.Workflow, order *domain.OrderSummary, now time.Time) QueueEntryDTO {
	return QueueEntryDTO{
		OrderID:   w.OrderID,
		Status:    string(w.Status),
		Priority:  string(w.Priority),
		Rush:      w.Rush,
		WaveID:    w.WaveID,
		LockInfo:  w.LockInfo(now),
		Order:     order,
		CreatedAt: w.CreatedAt,
	}
}

// ToWaveDTO maps a pick wave to its API shape
func ToWaveDTO(w *domain.PickWave) WaveDTO {
	return WaveDTO{
		WaveID:       w.WaveID,
		PickerID:     w.PickerID,
		OrderIDs:     w.OrderIDs,
		PickedOrders: w.PickedOrders,
		TotalItems:   w.TotalItems,
		PickedItems:  w.PickedItems,
		Progress:     w.Progress(),
		Status:       string(w.Status),
		CreatedAt:    w.CreatedAt,
		CompletedAt:  w.CompletedAt,
	}
}

// ToEventDTO maps an audit log record to its API shape
func ToEventDTO(e *domain.WorkflowEvent) EventDTO {
	return EventDTO{
		EventID:    e.EventID,
		OrderID:    e.OrderID,
		EventType:  e.EventType,
		ActorID:    e.ActorID,
		TotalItems: e.TotalItems,
		Metadata:   e.Metadata,
		CreatedAt:  e.CreatedAt,
	}
}

// ToEventDTOs maps a slice of audit log records
func ToEventDTOs(events []*domain.WorkflowEvent) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = ToEventDTO(e)
	}
	return dtos
}
