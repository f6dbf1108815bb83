package domain

import (
	"context"
	"time"
)

// ClaimResult is the outcome of an atomic claim
type ClaimResult struct {
	Workflow *Workflow
	Outcome  ClaimOutcome
}

// WorkflowRepository persists workflows. Claim, Release, CompletePick and
// CompletePack must be implemented as single conditional writes so that
// concurrent callers cannot interleave between guard check and mutation.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *Workflow) error
	FindByOrderID(ctx context.Context, orderID string) (*Workflow, error)
	FindAll(ctx context.Context) ([]*Workflow, error)
	FindByWaveID(ctx context.Context, waveID string) ([]*Workflow, error)

	Claim(ctx context.Context, orderID, actor string, role Role, ttl time.Duration) (*ClaimResult, error)
	Release(ctx context.Context, orderID, actor string) (*Workflow, error)
	CompletePick(ctx context.Context, orderID, actor, notes string, itemCount int) (*Workflow, error)
	CompletePack(ctx context.Context, orderID, actor string, shipment Shipment, itemCount int) (*Workflow, error)
	AssignWave(ctx context.Context, orderIDs []string, waveID string) error
}

// WaveRepository persists pick waves
type WaveRepository interface {
	Save(ctx context.Context, wave *PickWave) error
	FindByWaveID(ctx context.Context, waveID string) (*PickWave, error)
	FindByStatus(ctx context.Context, status WaveStatus) ([]*PickWave, error)
	FindAll(ctx context.Context) ([]*PickWave, error)
	FindActiveByOrderID(ctx context.Context, orderID string) (*PickWave, error)
}

// EventRepository is the append-only audit log
type EventRepository interface {
	Append(ctx context.Context, event *WorkflowEvent) error
	FindByOrderID(ctx context.Context, orderID string) ([]*WorkflowEvent, error)
	FindSince(ctx context.Context, since time.Time) ([]*WorkflowEvent, error)
}

// OrderSummary is the read-only order view joined into queue entries
type OrderSummary struct {
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber"`
	CustomerName string `json:"customerName"`
	ShippingCity string `json:"shippingCity,omitempty"`
	ItemCount    int    `json:"itemCount"`
}

// OrderCatalog reads order data from the order service
type OrderCatalog interface {
	GetOrder(ctx context.Context, orderID string) (*OrderSummary, error)
	GetOrders(ctx context.Context, orderIDs []string) (map[string]*OrderSummary, error)
}
