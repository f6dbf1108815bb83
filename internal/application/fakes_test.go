package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		ServiceName: "pickpack-service-test",
		Environment: "test",
		Level:       "error",
	})
}

// fakeWorkflowRepo drives the same aggregate methods the real repository
// encodes as conditional writes, serialized under a mutex.
type fakeWorkflowRepo struct {
	mu      sync.Mutex
	byOrder map[string]*domain.Workflow
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{byOrder: make(map[string]*domain.Workflow)}
}

func (r *fakeWorkflowRepo) add(w *domain.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ClearDomainEvents()
	r.byOrder[w.OrderID] = w
}

func (r *fakeWorkflowRepo) Create(ctx context.Context, w *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[w.OrderID]; ok {
		return domain.ErrWorkflowExists
	}
	w.ClearDomainEvents()
	r.byOrder[w.OrderID] = w
	return nil
}

func (r *fakeWorkflowRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byOrder[orderID], nil
}

func (r *fakeWorkflowRepo) FindAll(ctx context.Context) ([]*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Workflow, 0, len(r.byOrder))
	for _, w := range r.byOrder {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (r *fakeWorkflowRepo) FindByWaveID(ctx context.Context, waveID string) ([]*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Workflow
	for _, w := range r.byOrder {
		if w.WaveID == waveID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) Claim(ctx context.Context, orderID, actor string, role domain.Role, ttl time.Duration) (*domain.ClaimResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	outcome, err := w.Claim(actor, role, ttl, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	w.ClearDomainEvents()
	return &domain.ClaimResult{Workflow: w, Outcome: outcome}, nil
}

func (r *fakeWorkflowRepo) Release(ctx context.Context, orderID, actor string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if _, err := w.Release(actor, time.Now().UTC()); err != nil {
		return nil, err
	}
	w.ClearDomainEvents()
	return w, nil
}

func (r *fakeWorkflowRepo) CompletePick(ctx context.Context, orderID, actor, notes string, itemCount int) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if err := w.CompletePick(actor, notes, time.Now().UTC()); err != nil {
		return nil, err
	}
	w.ClearDomainEvents()
	return w, nil
}

func (r *fakeWorkflowRepo) CompletePack(ctx context.Context, orderID, actor string, shipment domain.Shipment, itemCount int) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if err := w.CompletePack(actor, shipment, time.Now().UTC()); err != nil {
		return nil, err
	}
	w.ClearDomainEvents()
	return w, nil
}

func (r *fakeWorkflowRepo) AssignWave(ctx context.Context, orderIDs []string, waveID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range orderIDs {
		if w, ok := r.byOrder[id]; ok {
			w.AssignWave(waveID, time.Now().UTC())
		}
	}
	return nil
}

type fakeWaveRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.PickWave
	saveErr error
}

func newFakeWaveRepo() *fakeWaveRepo {
	return &fakeWaveRepo{byID: make(map[string]*domain.PickWave)}
}

func (r *fakeWaveRepo) Save(ctx context.Context, w *domain.PickWave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	w.ClearDomainEvents()
	r.byID[w.WaveID] = w
	return nil
}

func (r *fakeWaveRepo) FindByWaveID(ctx context.Context, waveID string) (*domain.PickWave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[waveID], nil
}

func (r *fakeWaveRepo) FindByStatus(ctx context.Context, status domain.WaveStatus) ([]*domain.PickWave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PickWave
	for _, w := range r.byID {
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWaveRepo) FindAll(ctx context.Context) ([]*domain.PickWave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.PickWave, 0, len(r.byID))
	for _, w := range r.byID {
		out = append(out, w)
	}
	return out, nil
}

func (r *fakeWaveRepo) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.PickWave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.byID {
		if w.Status == domain.WaveStatusPicking && w.Contains(orderID) {
			return w, nil
		}
	}
	return nil, nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*domain.WorkflowEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) Append(ctx context.Context, e *domain.WorkflowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) FindByOrderID(ctx context.Context, orderID string) ([]*domain.WorkflowEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WorkflowEvent
	for _, e := range r.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) FindSince(ctx context.Context, since time.Time) ([]*domain.WorkflowEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WorkflowEvent
	for _, e := range r.events {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeOrderCatalog struct {
	orders map[string]*domain.OrderSummary
	err    error
}

func newFakeOrderCatalog() *fakeOrderCatalog {
	return &fakeOrderCatalog{orders: make(map[string]*domain.OrderSummary)}
}

func (c *fakeOrderCatalog) GetOrder(ctx context.Context, orderID string) (*domain.OrderSummary, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.orders[orderID], nil
}

func (c *fakeOrderCatalog) GetOrders(ctx context.Context, orderIDs []string) (map[string]*domain.OrderSummary, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]*domain.OrderSummary)
	for _, id := range orderIDs {
		if s, ok := c.orders[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}
