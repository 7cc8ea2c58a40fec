package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"fruitorders/internal/config"
	"fruitorders/internal/models"
)

var buyers = []string{"ana", "johanna", "ingeborg", "Åsa", "mateo", "li wei"}

// invalidOrders each break one intake rule.
var invalidOrders = []models.OrderInput{
	{Datestamp: "2011/12/02", Buyer: "ana"},
	{Datestamp: "2011/12/02", Buyer: "ana1", Apples: intPtr(3)},
	{Datestamp: "2011-12-02", Buyer: "ana", Apples: intPtr(3)},
	{Datestamp: "2011/12/2", Buyer: "ana", Oranges: intPtr(1)},
	{Datestamp: "1987/12/02", Buyer: "ana", Apples: intPtr(3)},
	{Datestamp: "2021/02/30", Buyer: "ana", Apples: intPtr(3)},
	{Datestamp: "2021/02/03", Buyer: "ana", Apples: intPtr(-2)},
}

func main() {
	cfg := config.MustLoad()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	slog.Info("Producer started. Sending messages...", "count", cfg.Producer.Count, "delay", cfg.Producer.Delay)

	ticker := time.NewTicker(cfg.Producer.Delay)
	defer ticker.Stop()

	for sent := 0; sent < cfg.Producer.Count; sent++ {
		<-ticker.C

		msgType := "VALID"
		in := randomOrder(rng)
		if rng.Float64() < cfg.Producer.InvalidRate {
			msgType = "INVALID"
			in = invalidOrders[rng.Intn(len(invalidOrders))]
		}

		value, err := json.Marshal(in)
		if err != nil {
			slog.Error("Failed to encode order", "error", err)
			continue
		}
		msg := kafka.Message{Key: []byte(uuid.NewString()), Value: value}

		sendOperation := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return writer.WriteMessages(ctx, msg)
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = cfg.Retry.InitialInterval
		bo.MaxInterval = cfg.Retry.MaxInterval
		bo.MaxElapsedTime = cfg.Retry.MaxElapsedTimeConsume

		if err := backoff.Retry(sendOperation, bo); err != nil {
			slog.Error("Failed to send message after retries", "type", msgType, "error", err)
			continue
		}
		slog.Info("Sent message", "type", msgType, "buyer", in.Buyer, "datestamp", in.Datestamp)
	}
}

func randomOrder(rng *rand.Rand) models.OrderInput {
	day := models.Epoch.AddDate(0, 0, rng.Intn(9000))
	in := models.OrderInput{
		Datestamp: models.FormatDatestamp(day),
		Buyer:     buyers[rng.Intn(len(buyers))],
	}
	switch rng.Intn(3) {
	case 0:
		in.Apples = intPtr(1 + rng.Intn(50))
	case 1:
		in.Oranges = intPtr(1 + rng.Intn(50))
	default:
		in.Apples = intPtr(1 + rng.Intn(50))
		in.Oranges = intPtr(1 + rng.Intn(50))
	}
	return in
}

func intPtr(v int) *int { return &v }
