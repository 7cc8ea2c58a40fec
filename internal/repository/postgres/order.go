package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fruitorders/internal/models"
	"fruitorders/internal/repository"
)

type Repository struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, order models.Order) error {
	const op = "repository.postgres.Insert"

	date, err := models.ParseDatestamp(order.Datestamp)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	orderSQL := `INSERT INTO orders (id, datestamp, buyer, apples, oranges)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, orderSQL, order.ID, date, order.Buyer, order.Apples, order.Oranges); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (models.Order, error) {
	const op = "repository.postgres.GetByID"

	orderSQL := `SELECT id, datestamp, buyer, apples, oranges FROM orders WHERE id = $1`

	var (
		order models.Order
		date  time.Time
	)
	err := r.db.QueryRow(ctx, orderSQL, id).Scan(&order.ID, &date, &order.Buyer, &order.Apples, &order.Oranges)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, repository.ErrNotFound
		}
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	order.Datestamp = models.FormatDatestamp(date)

	return order, nil
}

func (r *Repository) Update(ctx context.Context, order models.Order) (int64, error) {
	const op = "repository.postgres.Update"

	date, err := models.ParseDatestamp(order.Datestamp)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	orderSQL := `UPDATE orders SET datestamp = $1, buyer = $2, apples = $3, oranges = $4
        WHERE id = $5`
	tag, err := r.db.Exec(ctx, orderSQL, date, order.Buyer, order.Apples, order.Oranges, order.ID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) Delete(ctx context.Context, id int64) (int64, error) {
	const op = "repository.postgres.Delete"

	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	const op = "repository.postgres.AppendAudit"

	date, err := models.ParseDatestamp(entry.Datestamp)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	auditSQL := `INSERT INTO orders_audit (id, datestamp, buyer, apples, oranges, changed_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, auditSQL, entry.OrderID, date, entry.Buyer, entry.Apples, entry.Oranges, entry.ChangedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Repository) ListAudit(ctx context.Context, id int64) ([]models.AuditEntry, error) {
	const op = "repository.postgres.ListAudit"

	rows, err := r.db.Query(ctx, `
        SELECT id, datestamp, buyer, apples, oranges, changed_at
        FROM orders_audit
        WHERE id = $1
        ORDER BY seq
    `, id)
	if err != nil {
		return nil, fmt.Errorf("%s: query audit: %w", op, err)
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var (
			e    models.AuditEntry
			date time.Time
		)
		if err := rows.Scan(&e.OrderID, &date, &e.Buyer, &e.Apples, &e.Oranges, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("%s: scan audit: %w", op, err)
		}
		e.Datestamp = models.FormatDatestamp(date)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate audit: %w", op, err)
	}

	return entries, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

var _ repository.OrderRepository = (*Repository)(nil)
