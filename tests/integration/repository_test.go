package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pickpack-service/internal/domain"
	inframongo "github.com/wms-platform/pickpack-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/mongodb"
	"github.com/wms-platform/pickpack-service/pkg/outbox"
	outboxmongo "github.com/wms-platform/pickpack-service/pkg/outbox/mongodb"
	sharedtesting "github.com/wms-platform/pickpack-service/pkg/testing"
)

const testLockTTL = 15 * time.Minute

type testRepos struct {
	workflows *inframongo.WorkflowRepository
	waves     *inframongo.WaveRepository
	events    *inframongo.EventRepository
	outbox    *outboxmongo.Repository
}

func setupTestRepositories(t *testing.T) (*testRepos, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	mongoContainer, err := sharedtesting.NewMongoDBContainer(ctx)
	require.NoError(t, err)

	client, err := mongodb.NewClient(ctx, mongodb.DefaultConfig(mongoContainer.URI, "test_pickpack_db"))
	if err != nil {
		_ = mongoContainer.Close(ctx)
		t.Fatalf("failed to connect to mongodb: %v", err)
	}

	logger := logging.NewLogger(logging.Config{ServiceName: "integration-test", Level: "error"})
	factory := cloudevents.NewEventFactory("//wms/pickpack-service-test")

	outboxRepo, err := outboxmongo.NewRepository(ctx, client.Database())
	require.NoError(t, err)
	eventRepo, err := inframongo.NewEventRepository(ctx, client)
	require.NoError(t, err)
	workflowRepo, err := inframongo.NewWorkflowRepository(ctx, client, eventRepo, outboxRepo, factory, logger)
	require.NoError(t, err)
	waveRepo, err := inframongo.NewWaveRepository(ctx, client, outboxRepo, factory)
	require.NoError(t, err)

	cleanup := func() {
		if err := client.Close(ctx); err != nil {
			t.Logf("failed to close mongodb client: %v", err)
		}
		if err := mongoContainer.Close(ctx); err != nil {
			t.Logf("failed to close mongodb container: %v", err)
		}
	}

	return &testRepos{
		workflows: workflowRepo,
		waves:     waveRepo,
		events:    eventRepo,
		outbox:    outboxRepo,
	}, cleanup
}

func createTestWorkflow(t *testing.T, repos *testRepos, orderID string) *domain.Workflow {
	t.Helper()

	workflow, err := domain.NewWorkflow(orderID, domain.PriorityMedium, false)
	require.NoError(t, err)
	require.NoError(t, repos.workflows.Create(context.Background(), workflow))
	return workflow
}

func TestWorkflowRepositoryCreate(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("create and find", func(t *testing.T) {
		createTestWorkflow(t, repos, "ORD-CREATE-1")

		found, err := repos.workflows.FindByOrderID(ctx, "ORD-CREATE-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, domain.StatusPending, found.Status)
		assert.Empty(t, found.LockedBy)
	})

	t.Run("duplicate order is rejected", func(t *testing.T) {
		createTestWorkflow(t, repos, "ORD-CREATE-2")

		dup, err := domain.NewWorkflow("ORD-CREATE-2", domain.PriorityHigh, false)
		require.NoError(t, err)
		err = repos.workflows.Create(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrWorkflowExists)
	})

	t.Run("missing workflow reads as nil", func(t *testing.T) {
		found, err := repos.workflows.FindByOrderID(ctx, "ORD-NOPE")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestWorkflowRepositoryClaimLifecycle(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	orderID := "ORD-LIFE-1"
	createTestWorkflow(t, repos, orderID)

	result, err := repos.workflows.Claim(ctx, orderID, "alice", domain.RolePicker, testLockTTL)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPicking, result.Workflow.Status)
	assert.Equal(t, "alice", result.Workflow.LockedBy)
	assert.False(t, result.Outcome.Renewed)

	_, err = repos.workflows.CompletePick(ctx, orderID, "alice", "aisle 4 done", 5)
	require.NoError(t, err)

	result, err = repos.workflows.Claim(ctx, orderID, "bob", domain.RolePacker, testLockTTL)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPacking, result.Workflow.Status)

	completed, err := repos.workflows.CompletePack(ctx, orderID, "bob", domain.Shipment{
		CartonID:       "CTN-L",
		WeightKg:       2.4,
		TrackingNumber: "1Z999AA10123456784",
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, completed.Status)
	assert.Empty(t, completed.LockedBy)

	events, err := repos.events.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	assert.Equal(t, []string{
		domain.EventClaimPick,
		domain.EventCompletePick,
		domain.EventClaimPack,
		domain.EventCompletePack,
	}, types)
	assert.Equal(t, 5, events[1].TotalItems)
	assert.Equal(t, "CTN-L", events[3].Metadata["cartonId"])
}

func TestWorkflowRepositoryClaimConflict(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orderID := "ORD-CONFLICT-1"
	createTestWorkflow(t, repos, orderID)

	_, err := repos.workflows.Claim(ctx, orderID, "alice", domain.RolePicker, testLockTTL)
	require.NoError(t, err)

	t.Run("second actor is rejected", func(t *testing.T) {
		_, err := repos.workflows.Claim(ctx, orderID, "bob", domain.RolePicker, testLockTTL)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
	})

	t.Run("holder renews idempotently", func(t *testing.T) {
		result, err := repos.workflows.Claim(ctx, orderID, "alice", domain.RolePicker, testLockTTL)
		require.NoError(t, err)
		assert.True(t, result.Outcome.Renewed)
		assert.False(t, result.Outcome.Takeover)
	})

	t.Run("packer cannot claim picking stage", func(t *testing.T) {
		_, err := repos.workflows.Claim(ctx, orderID, "carol", domain.RolePacker, testLockTTL)
		assert.ErrorIs(t, err, domain.ErrRoleMismatch)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := repos.workflows.Claim(ctx, "ORD-MISSING", "alice", domain.RolePicker, testLockTTL)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})
}

func TestWorkflowRepositoryExpiredLockTakeover(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orderID := "ORD-EXPIRE-1"
	createTestWorkflow(t, repos, orderID)

	_, err := repos.workflows.Claim(ctx, orderID, "alice", domain.RolePicker, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	result, err := repos.workflows.Claim(ctx, orderID, "bob", domain.RolePicker, testLockTTL)
	require.NoError(t, err)
	assert.True(t, result.Outcome.Takeover)
	assert.Equal(t, "bob", result.Workflow.LockedBy)

	// The takeover is marked in the audit trail
	events, err := repos.events.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "true", events[1].Metadata["takeover"])

	// The previous holder can no longer complete
	_, err = repos.workflows.CompletePick(ctx, orderID, "alice", "", 0)
	assert.ErrorIs(t, err, domain.ErrNotLockHolder)
}

func TestWorkflowRepositoryConcurrentClaims(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	orderID := "ORD-RACE-1"
	createTestWorkflow(t, repos, orderID)

	const workers = 8
	var wg sync.WaitGroup
	winners := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			result, err := repos.workflows.Claim(ctx, orderID, actor, domain.RolePicker, testLockTTL)
			if err == nil {
				winners <- result.Workflow.LockedBy
			}
		}(fmt.Sprintf("worker-%d", i))
	}
	wg.Wait()
	close(winners)

	var claimed []string
	for w := range winners {
		claimed = append(claimed, w)
	}
	require.Len(t, claimed, 1, "exactly one worker should win the claim")

	final, err := repos.workflows.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, claimed[0], final.LockedBy)
	assert.Equal(t, domain.StatusPicking, final.Status)
}

func TestWorkflowRepositoryRelease(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orderID := "ORD-RELEASE-1"
	createTestWorkflow(t, repos, orderID)

	_, err := repos.workflows.Claim(ctx, orderID, "alice", domain.RolePicker, testLockTTL)
	require.NoError(t, err)

	t.Run("foreign actor cannot release", func(t *testing.T) {
		_, err := repos.workflows.Release(ctx, orderID, "bob")
		assert.ErrorIs(t, err, domain.ErrLockHeld)
	})

	t.Run("holder reverts one stage", func(t *testing.T) {
		released, err := repos.workflows.Release(ctx, orderID, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, released.Status)
		assert.Empty(t, released.LockedBy)
	})

	t.Run("release of an unheld stage is a no-op", func(t *testing.T) {
		released, err := repos.workflows.Release(ctx, orderID, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, released.Status)
	})
}

func TestWorkflowRepositoryOutbox(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orderID := "ORD-OUTBOX-1"
	createTestWorkflow(t, repos, orderID)
	_, err := repos.workflows.Claim(ctx, orderID, "alice", domain.RolePicker, testLockTTL)
	require.NoError(t, err)

	pending, err := repos.outbox.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	byType := make(map[string]*outbox.OutboxEvent, len(pending))
	for _, e := range pending {
		assert.Equal(t, "fulfillment.pickpack.events", e.Topic)
		byType[e.EventType] = e
	}
	require.Contains(t, byType, cloudevents.TypeWorkflowCreated)
	require.Contains(t, byType, cloudevents.TypePickClaimed)

	claimed, err := byType[cloudevents.TypePickClaimed].ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "orders/"+orderID, claimed.Subject)
	assert.Equal(t, orderID, claimed.OrderID)
	assert.Equal(t, "alice", claimed.ActorID)

	require.NoError(t, repos.outbox.MarkPublished(ctx, pending[0].ID))
	remaining, err := repos.outbox.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestWaveRepositorySaveAndFind(t *testing.T) {
	repos, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wave, err := domain.NewPickWave("alice", []string{"ORD-W1", "ORD-W2"}, map[string]int{"ORD-W1": 3, "ORD-W2": 4})
	require.NoError(t, err)
	require.NoError(t, repos.waves.Save(ctx, wave))

	t.Run("find by id", func(t *testing.T) {
		found, err := repos.waves.FindByWaveID(ctx, wave.WaveID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, domain.WaveStatusPicking, found.Status)
		assert.Equal(t, 7, found.TotalItems)
	})

	t.Run("find active by order", func(t *testing.T) {
		found, err := repos.waves.FindActiveByOrderID(ctx, "ORD-W2")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, wave.WaveID, found.WaveID)
	})

	t.Run("progress persists across saves", func(t *testing.T) {
		found, err := repos.waves.FindByWaveID(ctx, wave.WaveID)
		require.NoError(t, err)

		require.NoError(t, found.RecordOrderPicked("ORD-W1", time.Now().UTC()))
		require.NoError(t, repos.waves.Save(ctx, found))

		reloaded, err := repos.waves.FindByWaveID(ctx, wave.WaveID)
		require.NoError(t, err)
		assert.Equal(t, 3, reloaded.PickedItems)
		assert.Equal(t, []string{"ORD-W1"}, reloaded.PickedOrders)
		assert.Equal(t, domain.WaveStatusPicking, reloaded.Status)
	})
}
