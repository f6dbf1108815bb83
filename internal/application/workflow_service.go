package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/errors"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
)

// WorkflowService implements the claim/release/complete operations and batch
// claiming. All lock-sensitive mutations go through the repository's atomic
// conditional writes; this layer never checks a guard and then writes.
type WorkflowService struct {
	workflows domain.WorkflowRepository
	waves     domain.WaveRepository
	events    domain.EventRepository
	orders    domain.OrderCatalog
	logger    *logging.Logger
	metrics   *metrics.Metrics
	lockTTL   time.Duration
}

// NewWorkflowService creates a WorkflowService. metrics may be nil.
func NewWorkflowService(
	workflows domain.WorkflowRepository,
	waves domain.WaveRepository,
	events domain.EventRepository,
	orders domain.OrderCatalog,
	logger *logging.Logger,
	m *metrics.Metrics,
	lockTTL time.Duration,
) *WorkflowService {
	return &WorkflowService{
		workflows: workflows,
		waves:     waves,
		events:    events,
		orders:    orders,
		logger:    logger,
		metrics:   m,
		lockTTL:   lockTTL,
	}
}

// CreateWorkflow enqueues an order for fulfillment
func (s *WorkflowService) CreateWorkflow(ctx context.Context, cmd CreateWorkflowCommand) (*WorkflowDTO, error) {
	workflow, err := domain.NewWorkflow(cmd.OrderID, domain.Priority(cmd.Priority), cmd.Rush)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	if err := s.workflows.Create(ctx, workflow); err != nil {
		if stderrors.Is(err, domain.ErrWorkflowExists) {
			return nil, errors.ErrConflict("workflow already exists for order " + cmd.OrderID)
		}
		return nil, errors.ErrInternal("failed to create workflow", err)
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflowCreated(string(workflow.Priority))
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType: "workflow_created",
		OrderID:   workflow.OrderID,
		Details:   map[string]interface{}{"priority": workflow.Priority, "rush": workflow.Rush},
	})

	dto := ToWorkflowDTO(workflow, time.Now().UTC())
	return &dto, nil
}

// GetWorkflow returns the workflow for an order
func (s *WorkflowService) GetWorkflow(ctx context.Context, orderID string) (*WorkflowDTO, error) {
	workflow, err := s.workflows.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find workflow", err)
	}
	if workflow == nil {
		return nil, errors.ErrNotFound("workflow")
	}

	dto := ToWorkflowDTO(workflow, time.Now().UTC())
	return &dto, nil
}

// Claim acquires or renews the exclusive lock on an order. Renewal by the
// current holder succeeds idempotently; a foreign unexpired lock yields a
// conflict.
func (s *WorkflowService) Claim(ctx context.Context, cmd ClaimCommand) (*ClaimResultDTO, error) {
	role := domain.Role(cmd.Role)

	result, err := s.workflows.Claim(ctx, cmd.OrderID, cmd.EmployeeName, role, s.lockTTL)
	if err != nil {
		if s.metrics != nil && stderrors.Is(err, domain.ErrLockHeld) {
			s.metrics.RecordClaim(cmd.Role, "conflict")
		}
		return nil, s.mapWorkflowError(err, cmd.OrderID)
	}

	if s.metrics != nil {
		s.metrics.RecordClaim(cmd.Role, "granted")
		if result.Outcome.Takeover {
			s.metrics.RecordLockTakeover()
		}
	}
	if !result.Outcome.Renewed {
		s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
			EventType: "order_claimed",
			OrderID:   cmd.OrderID,
			ActorID:   cmd.EmployeeName,
			Details:   map[string]interface{}{"role": cmd.Role, "takeover": result.Outcome.Takeover},
		})
	}

	return &ClaimResultDTO{
		Workflow: ToWorkflowDTO(result.Workflow, time.Now().UTC()),
		Renewed:  result.Outcome.Renewed,
		Takeover: result.Outcome.Takeover,
	}, nil
}

// Release gives up the lock, reverting one stage
func (s *WorkflowService) Release(ctx context.Context, cmd ReleaseCommand) (*WorkflowDTO, error) {
	workflow, err := s.workflows.Release(ctx, cmd.OrderID, cmd.EmployeeName)
	if err != nil {
		return nil, s.mapWorkflowError(err, cmd.OrderID)
	}

	if s.metrics != nil {
		s.metrics.RecordRelease()
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType: "order_released",
		OrderID:   cmd.OrderID,
		ActorID:   cmd.EmployeeName,
		Details:   map[string]interface{}{"status": workflow.Status},
	})

	dto := ToWorkflowDTO(workflow, time.Now().UTC())
	return &dto, nil
}

// CompletePick finishes the picking stage and records wave progress when the
// order belongs to a wave.
func (s *WorkflowService) CompletePick(ctx context.Context, cmd CompletePickCommand) (*WorkflowDTO, error) {
	itemCount := s.lookupItemCount(ctx, cmd.OrderID)

	workflow, err := s.workflows.CompletePick(ctx, cmd.OrderID, cmd.EmployeeName, cmd.PickerNotes, itemCount)
	if err != nil {
		return nil, s.mapWorkflowError(err, cmd.OrderID)
	}

	if workflow.WaveID != "" {
		s.recordWaveProgress(ctx, workflow.WaveID, cmd.OrderID)
	}

	if s.metrics != nil {
		s.metrics.RecordStageCompleted("pick")
		if itemCount > 0 {
			s.metrics.RecordItemsPicked(itemCount)
		}
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType: "pick_completed",
		OrderID:   cmd.OrderID,
		WaveID:    workflow.WaveID,
		ActorID:   cmd.EmployeeName,
		Details:   map[string]interface{}{"items": itemCount},
	})

	dto := ToWorkflowDTO(workflow, time.Now().UTC())
	return &dto, nil
}

// CompletePack finishes the packing stage with the shipment record
func (s *WorkflowService) CompletePack(ctx context.Context, cmd CompletePackCommand) (*WorkflowDTO, error) {
	itemCount := s.lookupItemCount(ctx, cmd.OrderID)

	shipment := domain.Shipment{
		CartonID:       cmd.CartonID,
		WeightKg:       cmd.WeightKg,
		TrackingNumber: cmd.TrackingNumber,
		Notes:          cmd.PackerNotes,
	}

	workflow, err := s.workflows.CompletePack(ctx, cmd.OrderID, cmd.EmployeeName, shipment, itemCount)
	if err != nil {
		return nil, s.mapWorkflowError(err, cmd.OrderID)
	}

	if s.metrics != nil {
		s.metrics.RecordStageCompleted("pack")
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType: "pack_completed",
		OrderID:   cmd.OrderID,
		ActorID:   cmd.EmployeeName,
		Details: map[string]interface{}{
			"cartonId":       cmd.CartonID,
			"weightKg":       cmd.WeightKg,
			"trackingNumber": cmd.TrackingNumber,
		},
	})

	dto := ToWorkflowDTO(workflow, time.Now().UTC())
	return &dto, nil
}

// BatchClaim claims each requested order independently; a foreign lock on
// one order never blocks the rest. When at least one claim succeeds a pick
// wave is created over the claimed orders.
func (s *WorkflowService) BatchClaim(ctx context.Context, cmd BatchClaimCommand) (*BatchClaimResultDTO, error) {
	result := &BatchClaimResultDTO{
		Claimed: []string{},
		Failed:  []BatchClaimFailureDTO{},
	}

	seen := make(map[string]bool, len(cmd.OrderIDs))
	for _, orderID := range cmd.OrderIDs {
		if seen[orderID] {
			continue
		}
		seen[orderID] = true

		_, err := s.workflows.Claim(ctx, orderID, cmd.EmployeeName, domain.RolePicker, s.lockTTL)
		if err != nil {
			result.Failed = append(result.Failed, BatchClaimFailureDTO{
				OrderID: orderID,
				Reason:  claimFailureReason(err),
			})
			if s.metrics != nil && stderrors.Is(err, domain.ErrLockHeld) {
				s.metrics.RecordClaim(string(domain.RolePicker), "conflict")
			}
			continue
		}

		result.Claimed = append(result.Claimed, orderID)
		if s.metrics != nil {
			s.metrics.RecordClaim(string(domain.RolePicker), "granted")
		}
	}

	if len(result.Claimed) == 0 {
		return result, nil
	}

	orderItems := s.lookupItemCounts(ctx, result.Claimed)

	wave, err := domain.NewPickWave(cmd.EmployeeName, result.Claimed, orderItems)
	if err != nil {
		return nil, errors.ErrInternal("failed to create pick wave", err)
	}
	if err := s.waves.Save(ctx, wave); err != nil {
		return nil, errors.ErrInternal("failed to save pick wave", err)
	}
	if err := s.workflows.AssignWave(ctx, result.Claimed, wave.WaveID); err != nil {
		s.logger.WithError(err).Error("failed to stamp wave on claimed workflows", "waveId", wave.WaveID)
	}

	if s.metrics != nil {
		s.metrics.RecordWaveCreated()
	}
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType: "wave_created",
		WaveID:    wave.WaveID,
		ActorID:   cmd.EmployeeName,
		Details: map[string]interface{}{
			"claimed": len(result.Claimed),
			"failed":  len(result.Failed),
			"items":   wave.TotalItems,
		},
	})

	waveDTO := ToWaveDTO(wave)
	result.Wave = &waveDTO
	return result, nil
}

// LogEvent appends a manual record to the audit log
func (s *WorkflowService) LogEvent(ctx context.Context, cmd LogEventCommand) (*EventDTO, error) {
	workflow, err := s.workflows.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find workflow", err)
	}
	if workflow == nil {
		return nil, errors.ErrNotFound("workflow")
	}

	event, err := domain.NewWorkflowEvent(cmd.OrderID, cmd.EventType, cmd.EmployeeName, time.Now().UTC())
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	event.WithMetadata(cmd.Metadata)

	if err := s.events.Append(ctx, event); err != nil {
		return nil, errors.ErrInternal("failed to append event", err)
	}

	dto := ToEventDTO(event)
	return &dto, nil
}

// GetWorkflowEvents returns the audit log for one order, oldest first
func (s *WorkflowService) GetWorkflowEvents(ctx context.Context, orderID string) ([]EventDTO, error) {
	events, err := s.events.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, errors.ErrInternal("failed to load events", err)
	}
	return ToEventDTOs(events), nil
}

// GetWave returns one wave
func (s *WorkflowService) GetWave(ctx context.Context, waveID string) (*WaveDTO, error) {
	wave, err := s.waves.FindByWaveID(ctx, waveID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find wave", err)
	}
	if wave == nil {
		return nil, errors.ErrNotFound("wave")
	}

	dto := ToWaveDTO(wave)
	return &dto, nil
}

// ListWaves returns waves, optionally filtered by status
func (s *WorkflowService) ListWaves(ctx context.Context, status string) ([]WaveDTO, error) {
	var (
		waves []*domain.PickWave
		err   error
	)
	if status != "" {
		waves, err = s.waves.FindByStatus(ctx, domain.WaveStatus(status))
	} else {
		waves, err = s.waves.FindAll(ctx)
	}
	if err != nil {
		return nil, errors.ErrInternal("failed to list waves", err)
	}

	dtos := make([]WaveDTO, len(waves))
	for i, w := range waves {
		dtos[i] = ToWaveDTO(w)
	}
	return dtos, nil
}

// CancelWave abandons a wave and releases its unpicked orders best effort
func (s *WorkflowService) CancelWave(ctx context.Context, cmd CancelWaveCommand) (*WaveDTO, error) {
	wave, err := s.waves.FindByWaveID(ctx, cmd.WaveID)
	if err != nil {
		return nil, errors.ErrInternal("failed to find wave", err)
	}
	if wave == nil {
		return nil, errors.ErrNotFound("wave")
	}

	if err := wave.Cancel(cmd.Reason, time.Now().UTC()); err != nil {
		if stderrors.Is(err, domain.ErrWaveCompleted) {
			return nil, errors.ErrConflict("wave is already completed")
		}
		return nil, errors.ErrValidation(err.Error())
	}
	if err := s.waves.Save(ctx, wave); err != nil {
		return nil, errors.ErrInternal("failed to save wave", err)
	}

	for _, orderID := range wave.RemainingOrders() {
		if _, err := s.workflows.Release(ctx, orderID, wave.PickerID); err != nil {
			s.logger.WithError(err).Warn("failed to release order during wave cancel",
				"orderId", orderID, "waveId", wave.WaveID)
		}
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType: "wave_cancelled",
		WaveID:    wave.WaveID,
		ActorID:   cmd.EmployeeName,
		Details:   map[string]interface{}{"reason": cmd.Reason},
	})

	dto := ToWaveDTO(wave)
	return &dto, nil
}

// recordWaveProgress updates wave progress after an order's pick completed.
// Wave progress is advisory; failures are logged and swallowed so they never
// block the workflow transition.
func (s *WorkflowService) recordWaveProgress(ctx context.Context, waveID, orderID string) {
	wave, err := s.waves.FindByWaveID(ctx, waveID)
	if err != nil || wave == nil {
		s.logger.Warn("failed to load wave for progress update", "waveId", waveID, "orderId", orderID)
		return
	}

	if err := wave.RecordOrderPicked(orderID, time.Now().UTC()); err != nil {
		s.logger.WithError(err).Warn("failed to record wave progress", "waveId", waveID, "orderId", orderID)
		return
	}
	if err := s.waves.Save(ctx, wave); err != nil {
		s.logger.WithError(err).Error("failed to save wave progress", "waveId", waveID)
	}
}

// lookupItemCount fetches the order's item count, zero when the order
// service is unreachable.
func (s *WorkflowService) lookupItemCount(ctx context.Context, orderID string) int {
	if s.orders == nil {
		return 0
	}
	summary, err := s.orders.GetOrder(ctx, orderID)
	if err != nil || summary == nil {
		return 0
	}
	return summary.ItemCount
}

// lookupItemCounts fetches item counts for a batch of orders, best effort
func (s *WorkflowService) lookupItemCounts(ctx context.Context, orderIDs []string) map[string]int {
	counts := make(map[string]int, len(orderIDs))
	if s.orders == nil {
		return counts
	}
	summaries, err := s.orders.GetOrders(ctx, orderIDs)
	if err != nil {
		s.logger.WithError(err).Warn("failed to load order summaries for wave")
		return counts
	}
	for id, summary := range summaries {
		counts[id] = summary.ItemCount
	}
	return counts
}

// mapWorkflowError converts domain errors to API errors
func (s *WorkflowService) mapWorkflowError(err error, orderID string) error {
	switch {
	case stderrors.Is(err, domain.ErrWorkflowNotFound):
		return errors.ErrNotFound("workflow for order " + orderID)
	case stderrors.Is(err, domain.ErrLockHeld), stderrors.Is(err, domain.ErrNotLockHolder):
		return errors.ErrConflict("order " + orderID + " is locked by another worker")
	case stderrors.Is(err, domain.ErrLockExpired):
		return errors.ErrConflict("lock on order " + orderID + " has expired")
	case stderrors.Is(err, domain.ErrWorkflowComplete):
		return errors.ErrValidation("workflow for order " + orderID + " is already complete")
	case stderrors.Is(err, domain.ErrInvalidStage), stderrors.Is(err, domain.ErrRoleMismatch),
		stderrors.Is(err, domain.ErrInvalidRole), stderrors.Is(err, domain.ErrActorRequired):
		return errors.ErrValidation(err.Error())
	default:
		return errors.ErrInternal("workflow operation failed", err)
	}
}

func claimFailureReason(err error) string {
	switch {
	case stderrors.Is(err, domain.ErrWorkflowNotFound):
		return "not_found"
	case stderrors.Is(err, domain.ErrLockHeld):
		return "locked"
	case stderrors.Is(err, domain.ErrWorkflowComplete):
		return "complete"
	case stderrors.Is(err, domain.ErrRoleMismatch), stderrors.Is(err, domain.ErrInvalidStage):
		return "wrong_stage"
	default:
		return "error"
	}
}
