package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"fruitorders/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Connect opens a pool and waits for the database to answer a ping,
// backing off between attempts until cfg.MaxElapsedTimeDB runs out.
func Connect(ctx context.Context, dsn string, cfg config.Retry) (*pgxpool.Pool, error) {
	const op = "repository.postgres.Connect"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTimeDB

	ping := func() error {
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("database not ready, retrying", "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pool, nil
}

// EnsureSchema creates the orders and orders_audit tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("repository.postgres.EnsureSchema: %w", err)
	}
	return nil
}
