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

func appendEvent(t *testing.T, repo *fakeEventRepo, orderID, eventType, actor string, at time.Time, items int) {
	t.Helper()
	e, err := domain.NewWorkflowEvent(orderID, eventType, actor, at)
	require.NoError(t, err)
	e.WithTotalItems(items)
	require.NoError(t, repo.Append(context.Background(), e))
}

func TestStatsServiceGetStats(t *testing.T) {
	events := newFakeEventRepo()
	workflows := newFakeWorkflowRepo()
	service := NewStatsService(events, workflows, testLogger())

	now := time.Now().UTC()

	// Two completed orders: picks of 4 and 6 minutes, packs of 2 and 4 minutes
	appendEvent(t, events, "ORD-1", domain.EventClaimPick, "alice", now.Add(-60*time.Minute), 0)
	appendEvent(t, events, "ORD-1", domain.EventCompletePick, "alice", now.Add(-56*time.Minute), 6)
	appendEvent(t, events, "ORD-1", domain.EventClaimPack, "dave", now.Add(-50*time.Minute), 0)
	appendEvent(t, events, "ORD-1", domain.EventCompletePack, "dave", now.Add(-48*time.Minute), 6)

	appendEvent(t, events, "ORD-2", domain.EventClaimPick, "bob", now.Add(-40*time.Minute), 0)
	appendEvent(t, events, "ORD-2", domain.EventCompletePick, "bob", now.Add(-34*time.Minute), 6)
	appendEvent(t, events, "ORD-2", domain.EventClaimPack, "dave", now.Add(-30*time.Minute), 0)
	appendEvent(t, events, "ORD-2", domain.EventCompletePack, "dave", now.Add(-26*time.Minute), 6)

	// A claim without completion contributes nothing
	appendEvent(t, events, "ORD-3", domain.EventClaimPick, "carol", now.Add(-10*time.Minute), 0)

	// An old completed order outside the window is ignored
	appendEvent(t, events, "ORD-0", domain.EventCompletePack, "dave", now.Add(-48*time.Hour), 9)

	// Two active workflows for queue depth, one complete
	w1, _ := domain.NewWorkflow("ORD-3", domain.PriorityMedium, false)
	workflows.add(w1)
	w2, _ := domain.NewWorkflow("ORD-4", domain.PriorityMedium, false)
	workflows.add(w2)
	done, _ := domain.NewWorkflow("ORD-1", domain.PriorityMedium, false)
	done.Status = domain.StatusComplete
	workflows.add(done)

	stats, err := service.GetStats(context.Background(), "24h")
	require.NoError(t, err)

	assert.Equal(t, "24h", stats.Period)
	assert.Equal(t, 2, stats.OrdersCompleted)
	assert.InDelta(t, 300, stats.AvgPickTimeSeconds, 0.1) // (4m+6m)/2
	assert.InDelta(t, 180, stats.AvgPackTimeSeconds, 0.1) // (2m+4m)/2
	assert.InDelta(t, 0.5, stats.ItemsPerHour, 0.01)      // 12 items / 24h
	assert.Equal(t, 2, stats.QueueDepth)
}

func TestStatsServiceEmptyWindow(t *testing.T) {
	service := NewStatsService(newFakeEventRepo(), newFakeWorkflowRepo(), testLogger())

	stats, err := service.GetStats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "24h", stats.Period)
	assert.Zero(t, stats.OrdersCompleted)
	assert.Zero(t, stats.AvgPickTimeSeconds)
	assert.Zero(t, stats.ItemsPerHour)
}

func TestStatsServiceInvalidPeriod(t *testing.T) {
	service := NewStatsService(newFakeEventRepo(), newFakeWorkflowRepo(), testLogger())

	_, err := service.GetStats(context.Background(), "90d")
	assert.True(t, errors.IsValidation(err))

	_, err = service.GetLeaderboard(context.Background(), "yesterday", "picker")
	assert.True(t, errors.IsValidation(err))
}

func TestStatsServiceLeaderboard(t *testing.T) {
	events := newFakeEventRepo()
	service := NewStatsService(events, newFakeWorkflowRepo(), testLogger())

	now := time.Now().UTC()

	// alice picks two orders, bob one but faster
	appendEvent(t, events, "ORD-1", domain.EventClaimPick, "alice", now.Add(-60*time.Minute), 0)
	appendEvent(t, events, "ORD-1", domain.EventCompletePick, "alice", now.Add(-52*time.Minute), 4)
	appendEvent(t, events, "ORD-2", domain.EventClaimPick, "alice", now.Add(-50*time.Minute), 0)
	appendEvent(t, events, "ORD-2", domain.EventCompletePick, "alice", now.Add(-44*time.Minute), 2)
	appendEvent(t, events, "ORD-3", domain.EventClaimPick, "bob", now.Add(-30*time.Minute), 0)
	appendEvent(t, events, "ORD-3", domain.EventCompletePick, "bob", now.Add(-28*time.Minute), 5)

	// pack events must not leak into the picker board
	appendEvent(t, events, "ORD-1", domain.EventClaimPack, "dave", now.Add(-40*time.Minute), 0)
	appendEvent(t, events, "ORD-1", domain.EventCompletePack, "dave", now.Add(-38*time.Minute), 4)

	board, err := service.GetLeaderboard(context.Background(), "24h", "picker")
	require.NoError(t, err)
	assert.Equal(t, "picker", board.Type)
	require.Len(t, board.Entries, 2)

	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, "alice", board.Entries[0].EmployeeName)
	assert.Equal(t, 2, board.Entries[0].OrdersCompleted)
	assert.Equal(t, 6, board.Entries[0].ItemsProcessed)
	assert.InDelta(t, 420, board.Entries[0].AvgTimeSeconds, 0.1) // (8m+6m)/2

	assert.Equal(t, 2, board.Entries[1].Rank)
	assert.Equal(t, "bob", board.Entries[1].EmployeeName)

	packBoard, err := service.GetLeaderboard(context.Background(), "24h", "packer")
	require.NoError(t, err)
	require.Len(t, packBoard.Entries, 1)
	assert.Equal(t, "dave", packBoard.Entries[0].EmployeeName)
}

func TestStatsServiceTakeoverAttribution(t *testing.T) {
	events := newFakeEventRepo()
	service := NewStatsService(events, newFakeWorkflowRepo(), testLogger())

	now := time.Now().UTC()

	// alice claims, abandons; bob takes over the expired lock and finishes.
	// The later claim wins the pairing so bob's duration is measured from
	// the takeover, not from alice's claim.
	appendEvent(t, events, "ORD-1", domain.EventClaimPick, "alice", now.Add(-120*time.Minute), 0)
	appendEvent(t, events, "ORD-1", domain.EventClaimPick, "bob", now.Add(-20*time.Minute), 0)
	appendEvent(t, events, "ORD-1", domain.EventCompletePick, "bob", now.Add(-15*time.Minute), 3)

	board, err := service.GetLeaderboard(context.Background(), "24h", "picker")
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "bob", board.Entries[0].EmployeeName)
	assert.InDelta(t, 300, board.Entries[0].AvgTimeSeconds, 0.1)
}
