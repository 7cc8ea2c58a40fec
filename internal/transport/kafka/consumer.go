package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"fruitorders/internal/config"
	"fruitorders/internal/models"
)

// OrderCreator is the part of the order service the consumer needs.
type OrderCreator interface {
	Create(ctx context.Context, in models.OrderInput) (models.Order, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer turns queue messages into create calls. Every message is committed
// once handled, including rejected ones; only a shutdown leaves a message
// uncommitted.
type Consumer struct {
	service       OrderCreator
	reader        messageReader
	retry         config.Retry
	commitTimeout time.Duration
	log           *slog.Logger
}

func NewConsumer(srv OrderCreator, cfg *config.Config) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	})

	return newConsumer(srv, r, cfg.Retry, cfg.Kafka.CommitTimeout)
}

func newConsumer(srv OrderCreator, r messageReader, retry config.Retry, commitTimeout time.Duration) *Consumer {
	return &Consumer{
		service:       srv,
		reader:        r,
		retry:         retry,
		commitTimeout: commitTimeout,
		log:           slog.Default().With("component", "kafka_consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("Starting Kafka consumer...")

	for {
		m, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumer context cancelled, stopping...")
				return
			}
			c.log.Error("failed to fetch message after retries", "error", err)
			continue
		}

		if err := c.handle(ctx, m); err != nil {
			c.log.Info("Consumer stopped before committing message", "offset", m.Offset, "error", err)
			return
		}

		c.commit(m)
	}
}

func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	var m kafka.Message

	operation := func() error {
		var err error
		m, err = c.reader.FetchMessage(ctx)
		if err != nil {
			c.log.Warn("failed to fetch message from kafka, retrying...", "error", err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
	return m, err
}

// handle processes one message. It returns an error only when ctx ends
// before the message was dealt with.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var in models.OrderInput
	if err := json.Unmarshal(m.Value, &in); err != nil {
		c.log.Error("failed to unmarshal order", "error", err, "message_value", string(m.Value))
		return nil
	}

	var order models.Order
	create := func() error {
		var err error
		order, err = c.service.Create(ctx, in)
		if err == nil {
			return nil
		}
		if kind, ok := models.KindOf(err); ok && kind == models.KindConnectivity {
			c.log.Warn("storage unavailable, retrying order", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(create, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var e *models.Error
		if errors.As(err, &e) && e.Kind.IsInput() {
			c.log.Warn("order rejected", "kind", e.Kind.String(), "error", e.Message, "buyer", in.Buyer)
			return nil
		}
		c.log.Error("failed to save order", "error", err, "buyer", in.Buyer)
		return nil
	}

	c.log.Info("Successfully processed order", "order_id", order.ID)
	return nil
}

func (c *Consumer) commit(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.commitTimeout)
	defer cancel()

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.log.Error("failed to commit message", "error", err, "offset", m.Offset)
	}
}

func (c *Consumer) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.MaxInterval = c.retry.MaxInterval
	bo.MaxElapsedTime = c.retry.MaxElapsedTimeConsume
	return bo
}

func (c *Consumer) Close() {
	c.log.Info("Closing Kafka consumer...")

	if err := c.reader.Close(); err != nil {
		c.log.Error("failed to close kafka reader", "error", err)
	}

	c.log.Info("Kafka consumer closed.")
}
