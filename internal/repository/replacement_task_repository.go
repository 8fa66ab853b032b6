package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

const taskSelect = `SELECT id, absence_id, original_teacher_id, candidate_teacher_id, class_id, subject_id, schedule_entry_id,
       paired_entry_id, day_of_week, slot_number, date, tier, priority, state, decline_reason, created_at, updated_at
FROM replacement_tasks`

// ReplacementTaskRepository persists substitute offers.
type ReplacementTaskRepository struct {
	db *sqlx.DB
}

// NewReplacementTaskRepository constructs the repository.
func NewReplacementTaskRepository(db *sqlx.DB) *ReplacementTaskRepository {
	return &ReplacementTaskRepository{db: db}
}

func (r *ReplacementTaskRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a task.
func (r *ReplacementTaskRepository) Create(ctx context.Context, exec sqlx.ExtContext, task *models.ReplacementTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `INSERT INTO replacement_tasks (id, absence_id, original_teacher_id, candidate_teacher_id, class_id, subject_id,
schedule_entry_id, paired_entry_id, day_of_week, slot_number, date, tier, priority, state, decline_reason, created_at, updated_at)
VALUES (:id, :absence_id, :original_teacher_id, :candidate_teacher_id, :class_id, :subject_id,
:schedule_entry_id, :paired_entry_id, :day_of_week, :slot_number, :date, :tier, :priority, :state, :decline_reason, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, task); err != nil {
		return fmt.Errorf("create replacement task: %w", err)
	}
	return nil
}

// FindByID loads one task.
func (r *ReplacementTaskRepository) FindByID(ctx context.Context, id string) (*models.ReplacementTask, error) {
	var task models.ReplacementTask
	if err := r.db.GetContext(ctx, &task, taskSelect+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get replacement task: %w", err)
	}
	return &task, nil
}

// Transition moves a task between states. It returns sql.ErrNoRows when the task is no longer in from.
func (r *ReplacementTaskRepository) Transition(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.ReplacementState, reason *string) error {
	const query = `UPDATE replacement_tasks SET state = $1, decline_reason = COALESCE($2, decline_reason), updated_at = $3 WHERE id = $4 AND state = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, to, reason, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("transition replacement task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transitioned task rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByAbsence returns every task raised for an absence.
func (r *ReplacementTaskRepository) ListByAbsence(ctx context.Context, absenceID string) ([]models.ReplacementTask, error) {
	var tasks []models.ReplacementTask
	if err := r.db.SelectContext(ctx, &tasks, taskSelect+` WHERE absence_id = $1 ORDER BY date ASC, slot_number ASC, created_at ASC`, absenceID); err != nil {
		return nil, fmt.Errorf("list absence replacement tasks: %w", err)
	}
	return tasks, nil
}

// ListByOccurrence returns the offer history of one dated entry.
func (r *ReplacementTaskRepository) ListByOccurrence(ctx context.Context, entryID string, date time.Time) ([]models.ReplacementTask, error) {
	var tasks []models.ReplacementTask
	if err := r.db.SelectContext(ctx, &tasks, taskSelect+` WHERE schedule_entry_id = $1 AND date = $2 ORDER BY created_at ASC`, entryID, date); err != nil {
		return nil, fmt.Errorf("list occurrence replacement tasks: %w", err)
	}
	return tasks, nil
}

// ListCommittedOn returns pending and accepted offers on a date, which hold their candidate's slot.
func (r *ReplacementTaskRepository) ListCommittedOn(ctx context.Context, date time.Time) ([]models.ReplacementTask, error) {
	var tasks []models.ReplacementTask
	states := pq.Array([]string{string(models.ReplacementPending), string(models.ReplacementAccepted)})
	if err := r.db.SelectContext(ctx, &tasks, taskSelect+` WHERE date = $1 AND state = ANY($2) AND candidate_teacher_id IS NOT NULL`, date, states); err != nil {
		return nil, fmt.Errorf("list committed replacement tasks: %w", err)
	}
	return tasks, nil
}

// ListExpiredPending returns pending offers created before the cutoff.
func (r *ReplacementTaskRepository) ListExpiredPending(ctx context.Context, before time.Time) ([]models.ReplacementTask, error) {
	var tasks []models.ReplacementTask
	if err := r.db.SelectContext(ctx, &tasks, taskSelect+` WHERE state = $1 AND created_at < $2 ORDER BY created_at ASC`, models.ReplacementPending, before); err != nil {
		return nil, fmt.Errorf("list expired replacement tasks: %w", err)
	}
	return tasks, nil
}

// ListAcceptedByCandidate returns the substitutions a teacher has already taken on a date.
func (r *ReplacementTaskRepository) ListAcceptedByCandidate(ctx context.Context, exec sqlx.ExtContext, candidateID string, date time.Time) ([]models.ReplacementTask, error) {
	var tasks []models.ReplacementTask
	if err := sqlx.SelectContext(ctx, r.exec(exec), &tasks, taskSelect+` WHERE candidate_teacher_id = $1 AND date = $2 AND state = $3`, candidateID, date, models.ReplacementAccepted); err != nil {
		return nil, fmt.Errorf("list accepted candidate tasks: %w", err)
	}
	return tasks, nil
}

// CountOpenForClass counts pending and accepted offers of a class dated on or after from.
func (r *ReplacementTaskRepository) CountOpenForClass(ctx context.Context, classID string, from time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM replacement_tasks WHERE class_id = $1 AND date >= $2 AND state = ANY($3)`
	states := pq.Array([]string{string(models.ReplacementPending), string(models.ReplacementAccepted)})
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, from, states); err != nil {
		return 0, fmt.Errorf("count open class replacement tasks: %w", err)
	}
	return count, nil
}

// DeclineOpenForCourse declines the pending offers raised for a course dated on or after from.
func (r *ReplacementTaskRepository) DeclineOpenForCourse(ctx context.Context, exec sqlx.ExtContext, course models.Assignment, from time.Time, reason string) (int64, error) {
	const query = `UPDATE replacement_tasks SET state = $1, decline_reason = $2, updated_at = $3
WHERE class_id = $4 AND subject_id = $5 AND original_teacher_id = $6 AND date >= $7 AND state = $8`
	result, err := r.exec(exec).ExecContext(ctx, query, models.ReplacementDeclined, reason, time.Now().UTC(),
		course.ClassID, course.SubjectID, course.TeacherID, from, models.ReplacementPending)
	if err != nil {
		return 0, fmt.Errorf("decline course replacement tasks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check declined course rows: %w", err)
	}
	return affected, nil
}
