package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/pkg/config"
)

// Envelope is the JSON body carried on the notification queue.
type Envelope struct {
	Type        string          `json:"type"`
	RecipientID string          `json:"recipient_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher writes envelopes to a durable queue.
type Publisher struct {
	channel publishChannel
	queue   string
	timeout time.Duration
	closers []func() error
}

// Dial opens a connection and channel and declares the durable queue.
func Dial(cfg config.RabbitMQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareQueue(ch, cfg.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p := NewPublisher(ch, cfg.Queue, cfg.PublishTimeout)
	p.closers = []func() error{ch.Close, conn.Close}
	return p, nil
}

// DeclareQueue declares the durable, non-exclusive queue used by both sides.
func DeclareQueue(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// NewPublisher wraps an already open channel.
func NewPublisher(ch publishChannel, queue string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{channel: ch, queue: queue, timeout: timeout}
}

// Publish marshals payload into an envelope and sends it to the queue.
func (p *Publisher) Publish(ctx context.Context, eventType, recipientID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	body, err := json.Marshal(Envelope{
		Type:        eventType,
		RecipientID: recipientID,
		Payload:     raw,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.channel.PublishWithContext(ctx, "", p.queue, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close releases the channel and connection opened by Dial.
func (p *Publisher) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// HandlerFunc processes one decoded envelope. Returning an error dead-letters the delivery.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Consume reads deliveries until ctx ends, acking on success and nacking on failure.
func Consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle HandlerFunc, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				logger.Error("decode notification", zap.Error(err))
				_ = msg.Nack(false, false)
				continue
			}
			if err := handle(ctx, env); err != nil {
				logger.Error("handle notification", zap.String("type", env.Type), zap.Error(err))
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
