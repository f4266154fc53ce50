package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-management.git/internal/config"
	kafkax "github.com/ariefcatur/go-order-management.git/internal/kafka"
	"github.com/ariefcatur/go-order-management.git/internal/orders"
	"github.com/ariefcatur/go-order-management.git/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Audit trail: consume semua event lifecycle order dan tulis sebagai log
// terstruktur. Dedup via Redis pakai event_id.
func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	group := getenv("AUDIT_GROUP", "order-audit")
	workers := mustAtoi(os.Getenv("AUDIT_WORKERS"), "4")
	topics := []string{
		orders.TopicOrderCreated,
		orders.TopicOrderUpdated,
		orders.TopicOrderCancelled,
		orders.TopicOrderDeleted,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers)

	handler := func(ctx context.Context, m kafkago.Message) error {
		return record(ctx, rdb, m)
	}

	go func() {
		log.Info().Str("group", group).Int("workers", workers).Msg("audit consumer started")
		if err := cons.Start(ctx, handler); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down audit consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func record(ctx context.Context, rdb *redis.Client, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, "audit", env.EventID)
	if exists, _ := redisx.Exists(ctx, rdb, dkey); exists {
		return nil
	}
	_ = rdb.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	ev := log.Info().
		Str("event_type", env.EventType).
		Str("event_id", env.EventID).
		Str("order_id", env.CorrelationID).
		Str("producer", env.Producer).
		Time("occurred_at", env.OccurredAt)

	if env.EventType == orders.EventOrderCreated {
		if p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload); err == nil {
			ev = ev.Str("customer_id", p.CustomerID).Stringer("total", p.TotalPrice)
		}
	}
	ev.Msg("order event")
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
