package application

import (
	"context"
	"sort"
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/errors"
	"github.com/wms-platform/pickpack-service/pkg/logging"
)

// StatsService derives throughput metrics and the worker leaderboard from
// the append-only event log. Stage durations pair each claim event with the
// matching completion on the same order; claims without a completion inside
// the window contribute nothing.
type StatsService struct {
	events    domain.EventRepository
	workflows domain.WorkflowRepository
	logger    *logging.Logger
}

// NewStatsService creates a StatsService
func NewStatsService(events domain.EventRepository, workflows domain.WorkflowRepository, logger *logging.Logger) *StatsService {
	return &StatsService{
		events:    events,
		workflows: workflows,
		logger:    logger,
	}
}

// ParsePeriod resolves a period query value to a duration. Empty defaults
// to 24h.
func ParsePeriod(period string) (time.Duration, string, error) {
	switch period {
	case "", "24h":
		return 24 * time.Hour, "24h", nil
	case "7d":
		return 7 * 24 * time.Hour, "7d", nil
	case "30d":
		return 30 * 24 * time.Hour, "30d", nil
	default:
		return 0, "", errors.ErrValidation("period must be one of: 24h, 7d, 30d")
	}
}

type stagePair struct {
	claimType    string
	completeType string
}

var (
	pickStage = stagePair{claimType: domain.EventClaimPick, completeType: domain.EventCompletePick}
	packStage = stagePair{claimType: domain.EventClaimPack, completeType: domain.EventCompletePack}
)

// GetStats computes the aggregate view over the period
func (s *StatsService) GetStats(ctx context.Context, period string) (*StatsDTO, error) {
	d, label, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-d)
	events, err := s.events.FindSince(ctx, since)
	if err != nil {
		return nil, errors.ErrInternal("failed to load events", err)
	}

	pickDurations, itemsPicked := stageDurations(events, pickStage)
	packDurations, _ := stageDurations(events, packStage)

	ordersCompleted := 0
	for _, e := range events {
		if e.EventType == domain.EventCompletePack {
			ordersCompleted++
		}
	}

	queueDepth, err := s.activeQueueDepth(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to compute queue depth for stats")
	}

	return &StatsDTO{
		Period:             label,
		OrdersCompleted:    ordersCompleted,
		AvgPickTimeSeconds: avgSeconds(pickDurations),
		AvgPackTimeSeconds: avgSeconds(packDurations),
		ItemsPerHour:       float64(itemsPicked) / d.Hours(),
		QueueDepth:         queueDepth,
	}, nil
}

// GetLeaderboard ranks workers by completed orders over the period.
// leaderboardType selects picker or packer stats.
func (s *StatsService) GetLeaderboard(ctx context.Context, period, leaderboardType string) (*LeaderboardDTO, error) {
	d, label, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	var stage stagePair
	switch leaderboardType {
	case "", "picker":
		leaderboardType = "picker"
		stage = pickStage
	case "packer":
		stage = packStage
	default:
		return nil, errors.ErrValidation("type must be picker or packer")
	}

	since := time.Now().UTC().Add(-d)
	events, err := s.events.FindSince(ctx, since)
	if err != nil {
		return nil, errors.ErrInternal("failed to load events", err)
	}

	type actorStats struct {
		orders   int
		items    int
		duration time.Duration
		timed    int
	}
	byActor := make(map[string]*actorStats)

	claims := make(map[string]time.Time)
	for _, e := range events {
		switch e.EventType {
		case stage.claimType:
			claims[e.OrderID] = e.CreatedAt
		case stage.completeType:
			stats := byActor[e.ActorID]
			if stats == nil {
				stats = &actorStats{}
				byActor[e.ActorID] = stats
			}
			stats.orders++
			stats.items += e.TotalItems
			if claimedAt, ok := claims[e.OrderID]; ok {
				stats.duration += e.CreatedAt.Sub(claimedAt)
				stats.timed++
				delete(claims, e.OrderID)
			}
		}
	}

	entries := make([]LeaderboardEntryDTO, 0, len(byActor))
	for actor, stats := range byActor {
		avg := 0.0
		if stats.timed > 0 {
			avg = stats.duration.Seconds() / float64(stats.timed)
		}
		entries = append(entries, LeaderboardEntryDTO{
			EmployeeName:    actor,
			OrdersCompleted: stats.orders,
			ItemsProcessed:  stats.items,
			AvgTimeSeconds:  avg,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OrdersCompleted != entries[j].OrdersCompleted {
			return entries[i].OrdersCompleted > entries[j].OrdersCompleted
		}
		if entries[i].AvgTimeSeconds != entries[j].AvgTimeSeconds {
			return entries[i].AvgTimeSeconds < entries[j].AvgTimeSeconds
		}
		return entries[i].EmployeeName < entries[j].EmployeeName
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &LeaderboardDTO{
		Period:  label,
		Type:    leaderboardType,
		Entries: entries,
	}, nil
}

// stageDurations pairs claim events with their completions per order and
// returns the measured durations plus the item count summed over
// completions. A re-claim (takeover) of the same order overwrites the
// earlier claim time, so the duration reflects the worker who finished.
func stageDurations(events []*domain.WorkflowEvent, stage stagePair) ([]time.Duration, int) {
	claims := make(map[string]time.Time)
	var durations []time.Duration
	items := 0

	for _, e := range events {
		switch e.EventType {
		case stage.claimType:
			claims[e.OrderID] = e.CreatedAt
		case stage.completeType:
			items += e.TotalItems
			if claimedAt, ok := claims[e.OrderID]; ok {
				durations = append(durations, e.CreatedAt.Sub(claimedAt))
				delete(claims, e.OrderID)
			}
		}
	}

	return durations, items
}

func avgSeconds(durations []time.Duration) float64 {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total.Seconds() / float64(len(durations))
}

func (s *StatsService) activeQueueDepth(ctx context.Context) (int, error) {
	workflows, err := s.workflows.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	depth := 0
	for _, w := range workflows {
		if w.Status != domain.StatusComplete {
			depth++
		}
	}
	return depth, nil
}
