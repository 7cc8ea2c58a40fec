package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fruitorders/internal/dberrors"
	"fruitorders/internal/idgen"
	"fruitorders/internal/metrics"
	"fruitorders/internal/models"
	"fruitorders/internal/repository"
)

const msgNotFound = "Order id %d not present, please supply another id."

type OrderService interface {
	Create(ctx context.Context, in models.OrderInput) (models.Order, error)
	GetByID(ctx context.Context, id int64) (models.Order, error)
	Update(ctx context.Context, id int64, patch models.OrderPatch) (models.Order, error)
	Delete(ctx context.Context, id int64) (models.Order, error)
	History(ctx context.Context, id int64) ([]models.AuditEntry, error)
	Cost(ctx context.Context, id int64) (models.Cost, error)
	Ping(ctx context.Context) error
}

type Option func(*orderService)

func WithIDGenerator(g idgen.Generator) Option {
	return func(s *orderService) { s.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *orderService) { s.now = now }
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *orderService) { s.metrics = m }
}

// orderService runs each operation as a short sequence of independent
// statements. Nothing spans them: an update racing another update on the same
// id can overwrite it, and an audit append is not rolled back with its update.
type orderService struct {
	repo    repository.OrderRepository
	ids     idgen.Generator
	now     func() time.Time
	metrics *metrics.OrderMetrics
	log     *slog.Logger
}

func NewOrderService(repo repository.OrderRepository, opts ...Option) OrderService {
	s := &orderService{
		repo: repo,
		ids:  idgen.UUID{},
		now:  func() time.Time { return time.Now().UTC() },
		log:  slog.Default().With("component", "order_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *orderService) Create(ctx context.Context, in models.OrderInput) (order models.Order, err error) {
	defer s.observe("create", time.Now(), &err)

	if err = in.Validate(); err != nil {
		s.log.Info("Order rejected", "buyer", in.Buyer, "datestamp", in.Datestamp, "error", err)
		return models.Order{}, err
	}

	order = models.NewOrder(s.ids.NextID(), in)
	if err = s.repo.Insert(ctx, order); err != nil {
		err = dberrors.Classify(err)
		s.log.Error("Failed to insert order", "order_id", order.ID, "error", err)
		return models.Order{}, err
	}

	s.log.Info("Order created", "order_id", order.ID)
	return order, nil
}

func (s *orderService) GetByID(ctx context.Context, id int64) (order models.Order, err error) {
	defer s.observe("get", time.Now(), &err)

	return s.lookup(ctx, id)
}

func (s *orderService) Update(ctx context.Context, id int64, patch models.OrderPatch) (order models.Order, err error) {
	defer s.observe("update", time.Now(), &err)

	current, err := s.lookup(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	merged := current.Merge(patch)
	if err = merged.Input().Validate(); err != nil {
		s.log.Info("Order update rejected", "order_id", id, "error", err)
		return models.Order{}, err
	}

	affected, err := s.repo.Update(ctx, merged)
	if err != nil {
		err = dberrors.Classify(err)
		s.log.Error("Failed to update order", "order_id", id, "error", err)
		return models.Order{}, err
	}
	if affected == 0 {
		// Deleted between the lookup and the write.
		return models.Order{}, notFound(id)
	}

	if auditErr := s.repo.AppendAudit(ctx, current.Snapshot(s.now())); auditErr != nil {
		classified := dberrors.Classify(auditErr)
		s.log.Error("Order updated but audit entry was not recorded", "order_id", id, "error", classified)
		return merged, fmt.Errorf("%w: %w", models.ErrAuditNotRecorded, classified)
	}

	s.log.Info("Order updated", "order_id", id)
	return merged, nil
}

func (s *orderService) Delete(ctx context.Context, id int64) (order models.Order, err error) {
	defer s.observe("delete", time.Now(), &err)

	current, err := s.lookup(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		err = dberrors.Classify(err)
		s.log.Error("Failed to delete order", "order_id", id, "error", err)
		return models.Order{}, err
	}
	if affected == 0 {
		return models.Order{}, notFound(id)
	}

	s.log.Info("Order deleted", "order_id", id)
	return current, nil
}

// History lists the pre-update snapshots of id, oldest first. It does not
// require the order to still exist.
func (s *orderService) History(ctx context.Context, id int64) (entries []models.AuditEntry, err error) {
	defer s.observe("history", time.Now(), &err)

	entries, err = s.repo.ListAudit(ctx, id)
	if err != nil {
		err = dberrors.Classify(err)
		s.log.Error("Failed to list audit entries", "order_id", id, "error", err)
		return nil, err
	}
	return entries, nil
}

func (s *orderService) Cost(ctx context.Context, id int64) (cost models.Cost, err error) {
	defer s.observe("cost", time.Now(), &err)

	order, err := s.lookup(ctx, id)
	if err != nil {
		return models.Cost{}, err
	}
	return order.Cost(), nil
}

func (s *orderService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return dberrors.Classify(err)
	}
	return nil
}

func (s *orderService) lookup(ctx context.Context, id int64) (models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Order{}, notFound(id)
	}
	if err != nil {
		err = dberrors.Classify(err)
		s.log.Error("Failed to look up order", "order_id", id, "error", err)
		return models.Order{}, err
	}
	return order, nil
}

func (s *orderService) observe(op string, started time.Time, err *error) {
	s.metrics.Observe(op, started, *err)
}

func notFound(id int64) error {
	return models.NewError(models.KindNotFound, fmt.Sprintf(msgNotFound, id))
}
