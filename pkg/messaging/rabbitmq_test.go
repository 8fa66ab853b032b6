package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelStub struct {
	key string
	msg amqp.Publishing
	err error
}

func (c *channelStub) PublishWithContext(_ context.Context, _ string, key string, _ bool, _ bool, msg amqp.Publishing) error {
	c.key = key
	c.msg = msg
	return c.err
}

func TestPublisherPublishEnvelope(t *testing.T) {
	ch := &channelStub{}
	p := NewPublisher(ch, "scheduler_notifications", time.Second)

	err := p.Publish(context.Background(), "replacement.offer", "teacher-1", map[string]string{"task_id": "task-1"})
	require.NoError(t, err)

	assert.Equal(t, "scheduler_notifications", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)

	var env Envelope
	require.NoError(t, json.Unmarshal(ch.msg.Body, &env))
	assert.Equal(t, "replacement.offer", env.Type)
	assert.Equal(t, "teacher-1", env.RecipientID)
	assert.JSONEq(t, `{"task_id":"task-1"}`, string(env.Payload))
}

func TestPublisherPublishError(t *testing.T) {
	p := NewPublisher(&channelStub{err: errors.New("channel closed")}, "q", 0)

	err := p.Publish(context.Background(), "decay.completed", "admin-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestConsumeStopsWhenChannelClosed(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	done := make(chan struct{})
	go func() {
		Consume(context.Background(), deliveries, func(context.Context, Envelope) error { return nil }, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not return")
	}
}
