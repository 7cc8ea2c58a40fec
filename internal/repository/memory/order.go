// Package memory keeps orders in process memory. It backs local development
// runs (STORAGE_DRIVER=memory) and service tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fruitorders/internal/models"
	"fruitorders/internal/repository"
)

type Repository struct {
	mu     sync.RWMutex
	orders map[int64]models.Order
	audit  []models.AuditEntry
}

func New() *Repository {
	return &Repository{
		orders: make(map[int64]models.Order),
	}
}

// Insert stores a new order. A duplicate id is rejected like a primary key
// violation would be.
func (r *Repository) Insert(_ context.Context, order models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("duplicate key value violates unique constraint: id=%d", order.ID)
	}
	r.orders[order.ID] = clone(order)
	return nil
}

func (r *Repository) GetByID(_ context.Context, id int64) (models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return models.Order{}, repository.ErrNotFound
	}
	return clone(order), nil
}

func (r *Repository) Update(_ context.Context, order models.Order) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return 0, nil
	}
	r.orders[order.ID] = clone(order)
	return 1, nil
}

func (r *Repository) Delete(_ context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return 0, nil
	}
	delete(r.orders, id)
	return 1, nil
}

func (r *Repository) AppendAudit(_ context.Context, entry models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.audit = append(r.audit, entry)
	return nil
}

// ListAudit returns the entries of one order in insertion order.
func (r *Repository) ListAudit(_ context.Context, id int64) ([]models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]models.AuditEntry, 0)
	for _, e := range r.audit {
		if e.OrderID == id {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r *Repository) Ping(context.Context) error {
	return nil
}

func clone(o models.Order) models.Order {
	return o.Merge(models.OrderPatch{})
}

var _ repository.OrderRepository = (*Repository)(nil)
