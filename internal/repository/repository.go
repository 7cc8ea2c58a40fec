package repository

import (
	"context"
	"errors"

	"fruitorders/internal/models"
)

// ErrNotFound is returned by GetByID when no row has the requested id.
var ErrNotFound = errors.New("order not found")

// OrderRepository executes single statements against the orders and
// orders_audit tables. Implementations return raw driver errors; callers
// classify them.
type OrderRepository interface {
	Insert(ctx context.Context, order models.Order) error
	GetByID(ctx context.Context, id int64) (models.Order, error)
	Update(ctx context.Context, order models.Order) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
	ListAudit(ctx context.Context, id int64) ([]models.AuditEntry, error)
	Ping(ctx context.Context) error
}
