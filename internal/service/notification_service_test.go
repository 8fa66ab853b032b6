package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publisherStub struct {
	events []string
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, eventType, recipientID string, payload interface{}) error {
	p.events = append(p.events, eventType+":"+recipientID)
	return p.err
}

func TestNotificationServicePublishes(t *testing.T) {
	pub := &publisherStub{}
	svc := NewNotificationService(pub, nil)

	require.NoError(t, svc.Notify(context.Background(), "teacher-1", EventReplacementOffer, map[string]string{"task_id": "x"}))
	assert.Equal(t, []string{"replacement.offer:teacher-1"}, pub.events)
}

func TestNotificationServiceFailures(t *testing.T) {
	svc := NewNotificationService(&publisherStub{err: errors.New("broker down")}, nil)
	require.Error(t, svc.Notify(context.Background(), "teacher-1", EventReplacementOffer, nil))
	require.Error(t, svc.Notify(context.Background(), "", EventReplacementOffer, nil))

	require.NoError(t, NewNotificationService(nil, nil).Notify(context.Background(), "admin-1", EventCourseComplete, nil))
}
