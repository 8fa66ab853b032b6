package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/pkg/config"
	"github.com/noah-isme/sma-scheduling-engine/pkg/logger"
	"github.com/noah-isme/sma-scheduling-engine/pkg/messaging"
)

// notifier drains the scheduler notification queue. Delivery to mail or chat is done by downstream consumers;
// this process records every event so offers and escalations are auditable.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect rabbitmq", "error", err)
	}
	defer conn.Close() //nolint:errcheck

	ch, err := conn.Channel()
	if err != nil {
		logr.Sugar().Fatalw("failed to open channel", "error", err)
	}
	defer ch.Close() //nolint:errcheck

	if err := messaging.DeclareQueue(ch, cfg.RabbitMQ.Queue); err != nil {
		logr.Sugar().Fatalw("failed to declare queue", "error", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		logr.Sugar().Fatalw("failed to set prefetch", "error", err)
	}
	deliveries, err := ch.Consume(cfg.RabbitMQ.Queue, "scheduler-notifier", false, false, false, false, nil)
	if err != nil {
		logr.Sugar().Fatalw("failed to consume", "error", err)
	}

	logr.Info("notifier started", zap.String("queue", cfg.RabbitMQ.Queue))
	messaging.Consume(ctx, deliveries, func(ctx context.Context, env messaging.Envelope) error {
		logr.Info("notification",
			zap.String("type", env.Type),
			zap.String("recipient_id", env.RecipientID),
			zap.Time("occurred_at", env.OccurredAt),
			zap.ByteString("payload", env.Payload),
		)
		return nil
	}, logr)
	logr.Info("notifier stopped")
}
