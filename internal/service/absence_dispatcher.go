package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/jobs"
)

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// AbsenceDispatcher hands approved absences to the background queue.
type AbsenceDispatcher struct {
	queue  jobDispatcher
	logger *zap.Logger
}

// NewAbsenceDispatcher constructs the dispatcher.
func NewAbsenceDispatcher(queue jobDispatcher, logger *zap.Logger) *AbsenceDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbsenceDispatcher{queue: queue, logger: logger}
}

// Enqueue schedules processing of one absence. The absence id is the dedupe key.
func (d *AbsenceDispatcher) Enqueue(ctx context.Context, absenceID string) (*dto.AbsenceJobAccepted, error) {
	if absenceID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "absence id is required")
	}
	job := jobs.Job{ID: uuid.NewString(), Key: absenceID, Type: AbsenceJobType, Payload: absenceID}
	if err := d.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "absence is already being processed")
		}
		d.logger.Error("failed to enqueue absence", zap.String("absence_id", absenceID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue absence")
	}
	d.logger.Info("absence queued", zap.String("absence_id", absenceID), zap.String("job_id", job.ID))
	return &dto.AbsenceJobAccepted{JobID: job.ID, AbsenceID: absenceID}, nil
}
