package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

// Notification event types published to the notification queue.
const (
	EventReplacementOffer     = "replacement.offer"
	EventReplacementAccepted  = "replacement.accepted"
	EventReplacementEscalated = "replacement.escalated"
	EventCourseComplete       = "assignment.course_complete"
)

type eventPublisher interface {
	Publish(ctx context.Context, eventType, recipientID string, payload interface{}) error
}

// NotificationService hands engine events to the notification channel.
// Without a publisher events are only logged.
type NotificationService struct {
	publisher eventPublisher
	logger    *zap.Logger
}

// NewNotificationService constructs the notifier. publisher may be nil.
func NewNotificationService(publisher eventPublisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{publisher: publisher, logger: logger}
}

// Notify delivers one event to one recipient.
func (s *NotificationService) Notify(ctx context.Context, recipientID, event string, payload interface{}) error {
	if recipientID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification recipient is required")
	}
	if s.publisher == nil {
		s.logger.Info("notification", zap.String("event", event), zap.String("recipient_id", recipientID), zap.Any("payload", payload))
		return nil
	}
	if err := s.publisher.Publish(ctx, event, recipientID, payload); err != nil {
		s.logger.Warn("notification delivery failed", zap.String("event", event), zap.String("recipient_id", recipientID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "notification delivery failed")
	}
	return nil
}

type roleDirectory interface {
	ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

// notifyRole sends one event to every user holding role. Failures are logged, not returned.
func notifyRole(ctx context.Context, directory roleDirectory, n notifier, role, event string, payload interface{}, logger *zap.Logger) {
	if directory == nil || n == nil {
		return
	}
	users, err := directory.ListUsersByRole(ctx, models.UserRole(role))
	if err != nil {
		logger.Warn("role lookup failed", zap.String("role", role), zap.String("event", event), zap.Error(err))
		return
	}
	for _, user := range users {
		if err := n.Notify(ctx, user.ID, event, payload); err != nil {
			logger.Warn("role notification failed", zap.String("event", event), zap.String("user_id", user.ID), zap.Error(err))
		}
	}
}
