package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/errors"
)

const testLockTTL = 15 * time.Minute

type serviceFixture struct {
	workflows *fakeWorkflowRepo
	waves     *fakeWaveRepo
	events    *fakeEventRepo
	orders    *fakeOrderCatalog
	service   *WorkflowService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		workflows: newFakeWorkflowRepo(),
		waves:     newFakeWaveRepo(),
		events:    newFakeEventRepo(),
		orders:    newFakeOrderCatalog(),
	}
	f.service = NewWorkflowService(f.workflows, f.waves, f.events, f.orders, testLogger(), nil, testLockTTL)
	return f
}

func (f *serviceFixture) seedWorkflow(t *testing.T, orderID string, priority domain.Priority) *domain.Workflow {
	t.Helper()
	w, err := domain.NewWorkflow(orderID, priority, false)
	require.NoError(t, err)
	f.workflows.add(w)
	return w
}

func TestWorkflowServiceCreateWorkflow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	dto, err := f.service.CreateWorkflow(ctx, CreateWorkflowCommand{OrderID: "ORD-1", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, "pending", dto.Status)
	assert.Equal(t, "high", dto.Priority)

	// Duplicate order conflicts
	_, err = f.service.CreateWorkflow(ctx, CreateWorkflowCommand{OrderID: "ORD-1"})
	assert.True(t, errors.IsConflict(err))

	// Bad priority is a validation error
	_, err = f.service.CreateWorkflow(ctx, CreateWorkflowCommand{OrderID: "ORD-2", Priority: "urgent"})
	assert.True(t, errors.IsValidation(err))
}

func TestWorkflowServiceClaim(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)

	result, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "alice", Role: "picker"})
	require.NoError(t, err)
	assert.Equal(t, "picking", result.Workflow.Status)
	assert.True(t, result.Workflow.LockInfo.IsLocked)
	assert.False(t, result.Renewed)

	// Competitor conflicts
	_, err = f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "bob", Role: "picker"})
	assert.True(t, errors.IsConflict(err))

	// Holder renews
	result, err = f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "alice", Role: "picker"})
	require.NoError(t, err)
	assert.True(t, result.Renewed)

	// Unknown order
	_, err = f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-404", EmployeeName: "alice", Role: "picker"})
	assert.True(t, errors.IsNotFound(err))
}

func TestWorkflowServiceReleaseAndReclaim(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)

	_, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "erin", Role: "picker"})
	require.NoError(t, err)

	dto, err := f.service.Release(ctx, ReleaseCommand{OrderID: "ORD-1", EmployeeName: "erin"})
	require.NoError(t, err)
	assert.Equal(t, "pending", dto.Status)
	assert.False(t, dto.LockInfo.IsLocked)

	// Anyone can claim again
	result, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "bob", Role: "picker"})
	require.NoError(t, err)
	assert.Equal(t, "picking", result.Workflow.Status)
}

func TestWorkflowServiceCompletePickAndPack(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)
	f.orders.orders["ORD-1"] = &domain.OrderSummary{OrderID: "ORD-1", ItemCount: 4}

	_, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "alice", Role: "picker"})
	require.NoError(t, err)

	dto, err := f.service.CompletePick(ctx, CompletePickCommand{OrderID: "ORD-1", EmployeeName: "alice", PickerNotes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ready_to_pack", dto.Status)

	// Completing pick again is a stage violation, not a conflict
	_, err = f.service.CompletePick(ctx, CompletePickCommand{OrderID: "ORD-1", EmployeeName: "alice"})
	assert.True(t, errors.IsValidation(err))

	_, err = f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "dave", Role: "packer"})
	require.NoError(t, err)

	dto, err = f.service.CompletePack(ctx, CompletePackCommand{
		OrderID:        "ORD-1",
		EmployeeName:   "dave",
		CartonID:       "CTN-9",
		WeightKg:       1.75,
		TrackingNumber: "1Z999AA10123456784",
	})
	require.NoError(t, err)
	assert.Equal(t, "complete", dto.Status)
	assert.Equal(t, "CTN-9", dto.CartonID)
}

func TestWorkflowServiceBatchClaimPartialSuccess(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)
	f.seedWorkflow(t, "ORD-2", domain.PriorityMedium)
	f.seedWorkflow(t, "ORD-3", domain.PriorityMedium)
	f.orders.orders["ORD-1"] = &domain.OrderSummary{OrderID: "ORD-1", ItemCount: 2}
	f.orders.orders["ORD-3"] = &domain.OrderSummary{OrderID: "ORD-3", ItemCount: 5}

	// ORD-2 is already held by someone else
	_, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-2", EmployeeName: "dave", Role: "picker"})
	require.NoError(t, err)

	result, err := f.service.BatchClaim(ctx, BatchClaimCommand{
		OrderIDs:     []string{"ORD-1", "ORD-2", "ORD-3", "ORD-404", "ORD-1"},
		EmployeeName: "carol",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ORD-1", "ORD-3"}, result.Claimed)
	require.Len(t, result.Failed, 2)
	failures := map[string]string{}
	for _, fail := range result.Failed {
		failures[fail.OrderID] = fail.Reason
	}
	assert.Equal(t, "locked", failures["ORD-2"])
	assert.Equal(t, "not_found", failures["ORD-404"])

	require.NotNil(t, result.Wave)
	assert.Equal(t, "carol", result.Wave.PickerID)
	assert.Equal(t, 7, result.Wave.TotalItems)
	assert.Equal(t, "picking", result.Wave.Status)

	// Claimed workflows are stamped with the wave
	w, _ := f.workflows.FindByOrderID(ctx, "ORD-1")
	assert.Equal(t, result.Wave.WaveID, w.WaveID)
	w, _ = f.workflows.FindByOrderID(ctx, "ORD-2")
	assert.Empty(t, w.WaveID)
}

func TestWorkflowServiceBatchClaimAllFail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)

	_, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "dave", Role: "picker"})
	require.NoError(t, err)

	result, err := f.service.BatchClaim(ctx, BatchClaimCommand{
		OrderIDs:     []string{"ORD-1"},
		EmployeeName: "carol",
	})
	require.NoError(t, err, "total failure is still a successful batch response")
	assert.Empty(t, result.Claimed)
	assert.Len(t, result.Failed, 1)
	assert.Nil(t, result.Wave, "no wave without at least one claimed order")
}

func TestWorkflowServiceCompletePickAdvancesWave(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)
	f.seedWorkflow(t, "ORD-2", domain.PriorityMedium)
	f.orders.orders["ORD-1"] = &domain.OrderSummary{OrderID: "ORD-1", ItemCount: 3}
	f.orders.orders["ORD-2"] = &domain.OrderSummary{OrderID: "ORD-2", ItemCount: 2}

	batch, err := f.service.BatchClaim(ctx, BatchClaimCommand{
		OrderIDs:     []string{"ORD-1", "ORD-2"},
		EmployeeName: "carol",
	})
	require.NoError(t, err)
	require.NotNil(t, batch.Wave)

	_, err = f.service.CompletePick(ctx, CompletePickCommand{OrderID: "ORD-1", EmployeeName: "carol"})
	require.NoError(t, err)

	wave, err := f.service.GetWave(ctx, batch.Wave.WaveID)
	require.NoError(t, err)
	assert.Equal(t, 3, wave.PickedItems)
	assert.Equal(t, "picking", wave.Status)

	_, err = f.service.CompletePick(ctx, CompletePickCommand{OrderID: "ORD-2", EmployeeName: "carol"})
	require.NoError(t, err)

	wave, err = f.service.GetWave(ctx, batch.Wave.WaveID)
	require.NoError(t, err)
	assert.Equal(t, "completed", wave.Status)
}

func TestWorkflowServiceCancelWaveReleasesOrders(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)
	f.seedWorkflow(t, "ORD-2", domain.PriorityMedium)

	batch, err := f.service.BatchClaim(ctx, BatchClaimCommand{
		OrderIDs:     []string{"ORD-1", "ORD-2"},
		EmployeeName: "carol",
	})
	require.NoError(t, err)

	_, err = f.service.CompletePick(ctx, CompletePickCommand{OrderID: "ORD-1", EmployeeName: "carol"})
	require.NoError(t, err)

	wave, err := f.service.CancelWave(ctx, CancelWaveCommand{WaveID: batch.Wave.WaveID, EmployeeName: "carol"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", wave.Status)

	// The unpicked order went back to pending; the picked one kept its stage
	w, _ := f.workflows.FindByOrderID(ctx, "ORD-2")
	assert.Equal(t, domain.StatusPending, w.Status)
	w, _ = f.workflows.FindByOrderID(ctx, "ORD-1")
	assert.Equal(t, domain.StatusReadyToPack, w.Status)
}

func TestWorkflowServiceLogEvent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)

	dto, err := f.service.LogEvent(ctx, LogEventCommand{
		OrderID:      "ORD-1",
		EventType:    domain.EventMessage,
		EmployeeName: "alice",
		Metadata:     map[string]string{"note": "item damaged, swapped unit"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventMessage, dto.EventType)
	assert.NotEmpty(t, dto.EventID)

	events, err := f.service.GetWorkflowEvents(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Unknown event types are rejected
	_, err = f.service.LogEvent(ctx, LogEventCommand{
		OrderID:      "ORD-1",
		EventType:    "restarted",
		EmployeeName: "alice",
	})
	assert.True(t, errors.IsValidation(err))

	// Unknown order is a 404
	_, err = f.service.LogEvent(ctx, LogEventCommand{
		OrderID:      "ORD-404",
		EventType:    domain.EventMessage,
		EmployeeName: "alice",
	})
	assert.True(t, errors.IsNotFound(err))
}

func TestWorkflowServiceOrderCatalogOutage(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedWorkflow(t, "ORD-1", domain.PriorityMedium)
	f.orders.err = context.DeadlineExceeded

	// Claims and completions still work without order data
	_, err := f.service.Claim(ctx, ClaimCommand{OrderID: "ORD-1", EmployeeName: "alice", Role: "picker"})
	require.NoError(t, err)

	dto, err := f.service.CompletePick(ctx, CompletePickCommand{OrderID: "ORD-1", EmployeeName: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "ready_to_pack", dto.Status)
}
