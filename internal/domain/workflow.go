package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkflowStatus represents the fulfillment stage of an order
type WorkflowStatus string

const (
	StatusPending     WorkflowStatus = "pending"
	StatusPicking     WorkflowStatus = "picking"
	StatusReadyToPack WorkflowStatus = "ready_to_pack"
	StatusPacking     WorkflowStatus = "packing"
	StatusComplete    WorkflowStatus = "complete"
)

// Priority represents order urgency for queue ordering
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityRush   Priority = "rush"
)

// Rank returns the sort weight of the priority, higher is more urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityRush:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityRush:
		return true
	}
	return false
}

// Role identifies which stage a worker acts on
type Role string

const (
	RolePicker Role = "picker"
	RolePacker Role = "packer"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RolePicker || r == RolePacker
}

// Domain errors
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow already exists for order")
	ErrWorkflowComplete = errors.New("workflow is already complete")
	ErrLockHeld         = errors.New("order is locked by another worker")
	ErrLockExpired      = errors.New("lock has expired")
	ErrNotLockHolder    = errors.New("lock is held by another worker")
	ErrInvalidStage     = errors.New("operation not allowed in current stage")
	ErrRoleMismatch     = errors.New("role cannot act on this stage")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidRole      = errors.New("invalid role")
	ErrOrderIDRequired  = errors.New("order ID is required")
	ErrActorRequired    = errors.New("employee name is required")
)

// Shipment holds the fields captured when packing completes
type Shipment struct {
	CartonID       string  `json:"cartonId"`
	WeightKg       float64 `json:"weightKg"`
	TrackingNumber string  `json:"trackingNumber"`
	Notes          string  `json:"notes"`
}

// LockInfo is the resolved lock state of a workflow at a point in time.
// A lock past its expiry is reported as not locked; expiry is evaluated
// lazily by every reader, there is no background sweeper.
type LockInfo struct {
	IsLocked  bool       `json:"isLocked"`
	LockedBy  string     `json:"lockedBy,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Workflow is the pick-pack aggregate. One workflow exists per order and
// advances through pending → picking → ready_to_pack → packing → complete.
// Transitions only move forward except release, which reverts exactly one
// stage and is the only backward edge.
type Workflow struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	WorkflowID    string             `bson:"workflowId"`
	OrderID       string             `bson:"orderId"`
	Status        WorkflowStatus     `bson:"status"`
	LockedBy      string             `bson:"lockedBy"`
	LockExpiresAt *time.Time         `bson:"lockExpiresAt,omitempty"`
	Priority      Priority           `bson:"priority"`
	Rush          bool               `bson:"rush"`
	WaveID        string             `bson:"waveId,omitempty"`
	PickerNotes   string             `bson:"pickerNotes,omitempty"`
	PackerNotes   string             `bson:"packerNotes,omitempty"`

	// Shipment fields, set when packing completes
	CartonID       string  `bson:"cartonId,omitempty"`
	WeightKg       float64 `bson:"weightKg,omitempty"`
	TrackingNumber string  `bson:"trackingNumber,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewWorkflow creates a pending workflow for an order
func NewWorkflow(orderID string, priority Priority, rush bool) (*Workflow, error) {
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}

	now := time.Now().UTC()
	w := &Workflow{
		WorkflowID: uuid.New().String(),
		OrderID:    orderID,
		Status:     StatusPending,
		Priority:   priority,
		Rush:       rush,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	w.AddDomainEvent(&WorkflowCreatedEvent{
		WorkflowID: w.WorkflowID,
		OrderID:    orderID,
		Priority:   priority,
		Rush:       rush,
		At:         now,
	})

	return w, nil
}

// lockActive reports whether an unexpired lock exists at now
func (w *Workflow) lockActive(now time.Time) bool {
	return w.LockedBy != "" && w.LockExpiresAt != nil && w.LockExpiresAt.After(now)
}

// HeldBy reports whether actor holds an unexpired lock at now
func (w *Workflow) HeldBy(actor string, now time.Time) bool {
	return w.lockActive(now) && w.LockedBy == actor
}

// LockInfo resolves the lock state at now with lazy expiry applied
func (w *Workflow) LockInfo(now time.Time) LockInfo {
	if !w.lockActive(now) {
		return LockInfo{}
	}
	return LockInfo{
		IsLocked:  true,
		LockedBy:  w.LockedBy,
		ExpiresAt: w.LockExpiresAt,
	}
}

// ClaimOutcome describes what a successful claim did
type ClaimOutcome struct {
	// Renewed is true when the holder re-claimed its own unexpired lock
	Renewed bool

	// Takeover is true when the claim displaced an expired lock
	Takeover bool
}

// Claim acquires or renews the exclusive lock for actor at now, advancing
// pending→picking or ready_to_pack→packing on a fresh acquisition. Renewal
// by the current holder only extends the expiry and emits no event. A claim
// over an expired lock succeeds regardless of who held it.
func (w *Workflow) Claim(actor string, role Role, ttl time.Duration, now time.Time) (ClaimOutcome, error) {
	if actor == "" {
		return ClaimOutcome{}, ErrActorRequired
	}
	if !role.Valid() {
		return ClaimOutcome{}, ErrInvalidRole
	}

	expiresAt := now.Add(ttl)

	switch w.Status {
	case StatusPending:
		if role != RolePicker {
			return ClaimOutcome{}, ErrRoleMismatch
		}
		if w.lockActive(now) && w.LockedBy != actor {
			return ClaimOutcome{}, ErrLockHeld
		}
		w.Status = StatusPicking
		w.lock(actor, expiresAt, now)
		w.AddDomainEvent(&PickClaimedEvent{
			OrderID:   w.OrderID,
			Actor:     actor,
			ExpiresAt: expiresAt,
			At:        now,
		})
		return ClaimOutcome{}, nil

	case StatusPicking:
		if role != RolePicker {
			return ClaimOutcome{}, ErrRoleMismatch
		}
		return w.claimHeldStage(actor, expiresAt, now, &PickClaimedEvent{
			OrderID:   w.OrderID,
			Actor:     actor,
			Takeover:  true,
			ExpiresAt: expiresAt,
			At:        now,
		})

	case StatusReadyToPack:
		if role != RolePacker {
			return ClaimOutcome{}, ErrRoleMismatch
		}
		if w.lockActive(now) && w.LockedBy != actor {
			return ClaimOutcome{}, ErrLockHeld
		}
		w.Status = StatusPacking
		w.lock(actor, expiresAt, now)
		w.AddDomainEvent(&PackClaimedEvent{
			OrderID:   w.OrderID,
			Actor:     actor,
			ExpiresAt: expiresAt,
			At:        now,
		})
		return ClaimOutcome{}, nil

	case StatusPacking:
		if role != RolePacker {
			return ClaimOutcome{}, ErrRoleMismatch
		}
		return w.claimHeldStage(actor, expiresAt, now, &PackClaimedEvent{
			OrderID:   w.OrderID,
			Actor:     actor,
			Takeover:  true,
			ExpiresAt: expiresAt,
			At:        now,
		})

	case StatusComplete:
		return ClaimOutcome{}, ErrWorkflowComplete

	default:
		return ClaimOutcome{}, ErrInvalidStage
	}
}

// claimHeldStage handles claims on picking/packing: renewal for the holder,
// takeover when the lock expired, conflict otherwise.
func (w *Workflow) claimHeldStage(actor string, expiresAt, now time.Time, takeoverEvent DomainEvent) (ClaimOutcome, error) {
	if w.lockActive(now) {
		if w.LockedBy != actor {
			return ClaimOutcome{}, ErrLockHeld
		}
		w.LockExpiresAt = &expiresAt
		w.touch(now)
		return ClaimOutcome{Renewed: true}, nil
	}

	w.lock(actor, expiresAt, now)
	w.AddDomainEvent(takeoverEvent)
	return ClaimOutcome{Takeover: true}, nil
}

// Release gives up the lock and reverts one stage: picking→pending or
// packing→ready_to_pack. Releasing a workflow that holds no active lock is a
// no-op, so retries are safe. Returns whether a stage was actually reverted.
func (w *Workflow) Release(actor string, now time.Time) (bool, error) {
	if actor == "" {
		return false, ErrActorRequired
	}

	switch w.Status {
	case StatusPicking:
		if w.lockActive(now) && w.LockedBy != actor {
			return false, ErrLockHeld
		}
		w.Status = StatusPending
		w.unlock(now)
		w.AddDomainEvent(&WorkflowReleasedEvent{
			OrderID: w.OrderID,
			Actor:   actor,
			From:    StatusPicking,
			To:      StatusPending,
			At:      now,
		})
		return true, nil

	case StatusPacking:
		if w.lockActive(now) && w.LockedBy != actor {
			return false, ErrLockHeld
		}
		w.Status = StatusReadyToPack
		w.unlock(now)
		w.AddDomainEvent(&WorkflowReleasedEvent{
			OrderID: w.OrderID,
			Actor:   actor,
			From:    StatusPacking,
			To:      StatusReadyToPack,
			At:      now,
		})
		return true, nil

	default:
		// Nothing held at this stage; releasing again is a no-op.
		return false, nil
	}
}

// CompletePick finishes the picking stage. The caller must hold an unexpired
// lock; the lock is dropped and the workflow becomes claimable by packers.
func (w *Workflow) CompletePick(actor, notes string, now time.Time) error {
	if actor == "" {
		return ErrActorRequired
	}
	if w.Status == StatusComplete {
		return ErrWorkflowComplete
	}
	if w.Status != StatusPicking {
		return ErrInvalidStage
	}
	if w.LockedBy != actor {
		return ErrNotLockHolder
	}
	if !w.lockActive(now) {
		return ErrLockExpired
	}

	w.Status = StatusReadyToPack
	w.PickerNotes = notes
	w.unlock(now)
	w.AddDomainEvent(&PickCompletedEvent{
		OrderID: w.OrderID,
		Actor:   actor,
		Notes:   notes,
		At:      now,
	})

	return nil
}

// CompletePack finishes the packing stage and records the shipment. The
// caller must hold an unexpired lock; the workflow becomes terminal.
func (w *Workflow) CompletePack(actor string, shipment Shipment, now time.Time) error {
	if actor == "" {
		return ErrActorRequired
	}
	if w.Status == StatusComplete {
		return ErrWorkflowComplete
	}
	if w.Status != StatusPacking {
		return ErrInvalidStage
	}
	if w.LockedBy != actor {
		return ErrNotLockHolder
	}
	if !w.lockActive(now) {
		return ErrLockExpired
	}

	w.Status = StatusComplete
	w.CartonID = shipment.CartonID
	w.WeightKg = shipment.WeightKg
	w.TrackingNumber = shipment.TrackingNumber
	w.PackerNotes = shipment.Notes
	w.unlock(now)
	w.AddDomainEvent(&PackCompletedEvent{
		OrderID:        w.OrderID,
		Actor:          actor,
		CartonID:       shipment.CartonID,
		WeightKg:       shipment.WeightKg,
		TrackingNumber: shipment.TrackingNumber,
		At:             now,
	})

	return nil
}

// AssignWave stamps the workflow with the wave it was claimed into
func (w *Workflow) AssignWave(waveID string, now time.Time) {
	w.WaveID = waveID
	w.touch(now)
}

func (w *Workflow) lock(actor string, expiresAt, now time.Time) {
	w.LockedBy = actor
	w.LockExpiresAt = &expiresAt
	w.touch(now)
}

func (w *Workflow) unlock(now time.Time) {
	w.LockedBy = ""
	w.LockExpiresAt = nil
	w.touch(now)
}

func (w *Workflow) touch(now time.Time) {
	w.UpdatedAt = now
}

// AddDomainEvent appends a domain event to the aggregate
func (w *Workflow) AddDomainEvent(event DomainEvent) {
	w.DomainEvents = append(w.DomainEvents, event)
}

// ClearDomainEvents clears pending domain events after persistence
func (w *Workflow) ClearDomainEvents() {
	w.DomainEvents = nil
}

// GetDomainEvents returns the pending domain events
func (w *Workflow) GetDomainEvents() []DomainEvent {
	return w.DomainEvents
}
