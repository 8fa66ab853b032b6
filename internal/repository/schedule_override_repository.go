package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

// ScheduleOverrideRepository persists date-scoped substitutions.
type ScheduleOverrideRepository struct {
	db *sqlx.DB
}

// NewScheduleOverrideRepository constructs the repository.
func NewScheduleOverrideRepository(db *sqlx.DB) *ScheduleOverrideRepository {
	return &ScheduleOverrideRepository{db: db}
}

func (r *ScheduleOverrideRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an override.
func (r *ScheduleOverrideRepository) Create(ctx context.Context, exec sqlx.ExtContext, override *models.ScheduleOverride) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	override.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO schedule_overrides (id, schedule_entry_id, class_id, slot_number, date, substitute_teacher_id, task_id, created_at)
VALUES (:id, :schedule_entry_id, :class_id, :slot_number, :date, :substitute_teacher_id, :task_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, override); err != nil {
		return fmt.Errorf("create schedule override: %w", err)
	}
	return nil
}

// ListByClassDate returns the overrides applying to a class on one date.
func (r *ScheduleOverrideRepository) ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.ScheduleOverride, error) {
	const query = `SELECT id, schedule_entry_id, class_id, slot_number, date, substitute_teacher_id, task_id, created_at
FROM schedule_overrides
WHERE class_id = $1 AND date = $2`
	var overrides []models.ScheduleOverride
	if err := r.db.SelectContext(ctx, &overrides, query, classID, date); err != nil {
		return nil, fmt.Errorf("list class overrides: %w", err)
	}
	return overrides, nil
}
