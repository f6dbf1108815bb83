package application

import (
	"context"
	"sort"
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/errors"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
)

// QueueService projects the workflow collection into the five stage buckets
// shown on the warehouse floor displays.
type QueueService struct {
	workflows domain.WorkflowRepository
	orders    domain.OrderCatalog
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewQueueService creates a QueueService. metrics may be nil.
func NewQueueService(workflows domain.WorkflowRepository, orders domain.OrderCatalog, logger *logging.Logger, m *metrics.Metrics) *QueueService {
	return &QueueService{
		workflows: workflows,
		orders:    orders,
		logger:    logger,
		metrics:   m,
	}
}

// GetQueue builds the queue projection. Each bucket is sorted rush first,
// then by priority, then FIFO by creation time. Lock state is resolved with
// lazy expiry at projection time. The order-summary join is best effort: the
// queue still renders when the order service is down.
func (s *QueueService) GetQueue(ctx context.Context) (*QueueDTO, error) {
	workflows, err := s.workflows.FindAll(ctx)
	if err != nil {
		return nil, errors.ErrInternal("failed to load workflows", err)
	}

	now := time.Now().UTC()
	summaries := s.loadSummaries(ctx, workflows)

	queue := &QueueDTO{
		Pending:     []QueueEntryDTO{},
		Picking:     []QueueEntryDTO{},
		ReadyToPack: []QueueEntryDTO{},
		Packing:     []QueueEntryDTO{},
		Complete:    []QueueEntryDTO{},
		GeneratedAt: now,
	}

	buckets := map[domain.WorkflowStatus][]*domain.Workflow{}
	for _, w := range workflows {
		buckets[w.Status] = append(buckets[w.Status], w)
	}

	queue.Pending = s.bucketEntries(buckets[domain.StatusPending], summaries, now)
	queue.Picking = s.bucketEntries(buckets[domain.StatusPicking], summaries, now)
	queue.ReadyToPack = s.bucketEntries(buckets[domain.StatusReadyToPack], summaries, now)
	queue.Packing = s.bucketEntries(buckets[domain.StatusPacking], summaries, now)
	queue.Complete = s.bucketEntries(buckets[domain.StatusComplete], summaries, now)

	if s.metrics != nil {
		s.metrics.SetQueueDepth("pending", len(queue.Pending))
		s.metrics.SetQueueDepth("picking", len(queue.Picking))
		s.metrics.SetQueueDepth("ready_to_pack", len(queue.ReadyToPack))
		s.metrics.SetQueueDepth("packing", len(queue.Packing))
	}

	return queue, nil
}

func (s *QueueService) bucketEntries(workflows []*domain.Workflow, summaries map[string]*domain.OrderSummary, now time.Time) []QueueEntryDTO {
	sortBucket(workflows)

	entries := make([]QueueEntryDTO, len(workflows))
	for i, w := range workflows {
		entries[i] = ToQueueEntryDTO(w, summaries[w.OrderID], now)
	}
	return entries
}

// sortBucket orders workflows rush > high > medium > low, FIFO within the
// same urgency. The rush flag forces an order into the top band regardless
// of its stored priority.
func sortBucket(workflows []*domain.Workflow) {
	sort.SliceStable(workflows, func(i, j int) bool {
		ri, rj := urgencyRank(workflows[i]), urgencyRank(workflows[j])
		if ri != rj {
			return ri > rj
		}
		if !workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}
		return workflows[i].OrderID < workflows[j].OrderID
	})
}

func urgencyRank(w *domain.Workflow) int {
	if w.Rush {
		return domain.PriorityRush.Rank()
	}
	return w.Priority.Rank()
}

func (s *QueueService) loadSummaries(ctx context.Context, workflows []*domain.Workflow) map[string]*domain.OrderSummary {
	if s.orders == nil || len(workflows) == 0 {
		return map[string]*domain.OrderSummary{}
	}

	orderIDs := make([]string, len(workflows))
	for i, w := range workflows {
		orderIDs[i] = w.OrderID
	}

	summaries, err := s.orders.GetOrders(ctx, orderIDs)
	if err != nil {
		s.logger.WithError(err).Warn("order summary join unavailable, rendering queue without order data")
		return map[string]*domain.OrderSummary{}
	}
	return summaries
}
