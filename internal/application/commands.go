package application

// CreateWorkflowCommand enqueues an order for fulfillment
type CreateWorkflowCommand struct {
	OrderID  string `json:"orderId" binding:"required,order_id"`
	Priority string `json:"priority" binding:"omitempty,oneof=low medium high rush"`
	Rush     bool   `json:"rush"`
}

// ClaimCommand acquires or renews the exclusive lock on an order
type ClaimCommand struct {
	OrderID      string `json:"-"`
	EmployeeName string `json:"employeeName" binding:"required,employee_name"`
	Role         string `json:"role" binding:"required,oneof=picker packer"`
}

// ReleaseCommand gives up the lock on an order
type ReleaseCommand struct {
	OrderID      string `json:"-"`
	EmployeeName string `json:"employeeName" binding:"required,employee_name"`
}

// CompletePickCommand finishes the picking stage
type CompletePickCommand struct {
	OrderID      string `json:"-"`
	EmployeeName string `json:"employeeName" binding:"required,employee_name"`
	PickerNotes  string `json:"pickerNotes" binding:"omitempty,max=2000,safe_string"`
}

// CompletePackCommand finishes the packing stage with the shipment record
type CompletePackCommand struct {
	OrderID        string  `json:"-"`
	EmployeeName   string  `json:"employeeName" binding:"required,employee_name"`
	CartonID       string  `json:"cartonId" binding:"required,max=64,safe_string"`
	WeightKg       float64 `json:"weightKg" binding:"required,gt=0"`
	TrackingNumber string  `json:"trackingNumber" binding:"omitempty,tracking_number"`
	PackerNotes    string  `json:"packerNotes" binding:"omitempty,max=2000,safe_string"`
}

// BatchClaimCommand claims several orders for one picker, best effort
type BatchClaimCommand struct {
	OrderIDs     []string `json:"orderIds" binding:"required,min=1,max=50,dive,order_id"`
	EmployeeName string   `json:"employeeName" binding:"required,employee_name"`
}

// LogEventCommand appends a manual entry to the audit log
type LogEventCommand struct {
	OrderID      string            `json:"-"`
	EventType    string            `json:"eventType" binding:"required"`
	EmployeeName string            `json:"employeeName" binding:"required,employee_name"`
	Metadata     map[string]string `json:"metadata" binding:"omitempty,max=20"`
}

// CancelWaveCommand abandons a wave and releases its unpicked orders
type CancelWaveCommand struct {
	WaveID       string `json:"-"`
	EmployeeName string `json:"employeeName" binding:"required,employee_name"`
	Reason       string `json:"reason" binding:"omitempty,max=500,safe_string"`
}
