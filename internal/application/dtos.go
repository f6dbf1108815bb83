package application

import (
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
)

// WorkflowDTO is the API representation of a workflow
type WorkflowDTO struct {
	WorkflowID     string          `json:"workflowId"`
	OrderID        string          `json:"orderId"`
	Status         string          `json:"status"`
	Priority       string          `json:"priority"`
	Rush           bool            `json:"rush"`
	WaveID         string          `json:"waveId,omitempty"`
	LockInfo       domain.LockInfo `json:"lockInfo"`
	PickerNotes    string          `json:"pickerNotes,omitempty"`
	PackerNotes    string          `json:"packerNotes,omitempty"`
	CartonID       string          `json:"cartonId,omitempty"`
	WeightKg       float64         `json:"weightKg,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ClaimResultDTO is returned from a successful claim or renewal
type ClaimResultDTO struct {
	Workflow WorkflowDTO `json:"workflow"`
	Renewed  bool        `json:"renewed"`
	Takeover bool        `json:"takeover"`
}

// QueueEntryDTO is one workflow in a queue bucket, joined with its order
// summary when the order service is reachable.
type QueueEntryDTO struct {
	OrderID   string               `json:"orderId"`
	Status    string               `json:"status"`
	Priority  string               `json:"priority"`
	Rush      bool                 `json:"rush"`
	WaveID    string               `json:"waveId,omitempty"`
	LockInfo  domain.LockInfo      `json:"lockInfo"`
	Order     *domain.OrderSummary `json:"order,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// QueueDTO is the five-bucket queue projection
type QueueDTO struct {
	Pending     []QueueEntryDTO `json:"pending"`
	Picking     []QueueEntryDTO `json:"picking"`
	ReadyToPack []QueueEntryDTO `json:"readyToPack"`
	Packing     []QueueEntryDTO `json:"packing"`
	Complete    []QueueEntryDTO `json:"complete"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// BatchClaimFailureDTO reports one order that could not be claimed
type BatchClaimFailureDTO struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// BatchClaimResultDTO is the outcome of a best-effort batch claim
type BatchClaimResultDTO struct {
	Claimed []string               `json:"claimed"`
	Failed  []BatchClaimFailureDTO `json:"failed"`
	Wave    *WaveDTO               `json:"wave,omitempty"`
}

// WaveDTO is the API representation of a pick wave
type WaveDTO struct {
	WaveID       string     `json:"waveId"`
	PickerID     string     `json:"pickerId"`
	OrderIDs     []string   `json:"orderIds"`
	PickedOrders []string   `json:"pickedOrders"`
	TotalItems   int        `json:"totalItems"`
	PickedItems  int        `json:"pickedItems"`
	Progress     float64    `json:"progress"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// EventDTO is one audit log record
type EventDTO struct {
	EventID    string            `json:"eventId"`
	OrderID    string            `json:"orderId"`
	EventType  string            `json:"eventType"`
	ActorID    string            `json:"actorId"`
	TotalItems int               `json:"totalItems,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// StatsDTO is the aggregate throughput view over a period
type StatsDTO struct {
	Period             string  `json:"period"`
	OrdersCompleted    int     `json:"ordersCompleted"`
	AvgPickTimeSeconds float64 `json:"avgPickTimeSeconds"`
	AvgPackTimeSeconds float64 `json:"avgPackTimeSeconds"`
	ItemsPerHour       float64 `json:"itemsPerHour"`
	QueueDepth         int     `json:"queueDepth"`
}

// LeaderboardEntryDTO is one worker's ranked stats
type LeaderboardEntryDTO struct {
	Rank            int     `json:"rank"`
	EmployeeName    string  `json:"employeeName"`
	OrdersCompleted int     `json:"ordersCompleted"`
	ItemsProcessed  int     `json:"itemsProcessed"`
	AvgTimeSeconds  float64 `json:"avgTimeSeconds"`
}

// LeaderboardDTO is the ranked worker list for a period and role
type LeaderboardDTO struct {
	Period  string                `json:"period"`
	Type    string                `json:"type"`
	Entries []LeaderboardEntryDTO `json:"entries"`
}
