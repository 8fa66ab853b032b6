package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

const entryColumns = `e.id, e.term_id, e.class_id, e.subject_id, e.teacher_id, e.day_of_week, e.slot_number, e.is_double_period, e.created_at, e.updated_at`

// ScheduleEntryRepository persists recurring weekly timetable entries.
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository constructs the repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

func (r *ScheduleEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByClass returns every entry of a class across terms.
func (r *ScheduleEntryRepository) ListByClass(ctx context.Context, classID string) ([]models.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries e WHERE e.class_id = $1 ORDER BY e.day_of_week ASC, e.slot_number ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list class schedule entries: %w", err)
	}
	return entries, nil
}

// ListByClassTerm returns the entries of a class for one term.
func (r *ScheduleEntryRepository) ListByClassTerm(ctx context.Context, classID, termID string) ([]models.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries e WHERE e.class_id = $1 AND e.term_id = $2 ORDER BY e.day_of_week ASC, e.slot_number ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list class term schedule entries: %w", err)
	}
	return entries, nil
}

// ListByTeachers returns the term entries booked for any of the given teachers.
func (r *ScheduleEntryRepository) ListByTeachers(ctx context.Context, termID string, teacherIDs []string) ([]models.ScheduleEntry, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM schedule_entries e WHERE e.term_id = $1 AND e.teacher_id = ANY($2)`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, termID, pq.Array(teacherIDs)); err != nil {
		return nil, fmt.Errorf("list teacher schedule entries: %w", err)
	}
	return entries, nil
}

// ListActiveByTeacher returns a teacher's entries in the active term.
func (r *ScheduleEntryRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries e
JOIN terms t ON t.id = e.term_id AND t.is_active
WHERE e.teacher_id = $1
ORDER BY e.day_of_week ASC, e.slot_number ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, teacherID); err != nil {
		return nil, fmt.Errorf("list active teacher entries: %w", err)
	}
	return entries, nil
}

// ListActiveByDay returns every active-term entry on a weekday.
func (r *ScheduleEntryRepository) ListActiveByDay(ctx context.Context, dayOfWeek int) ([]models.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries e
JOIN terms t ON t.id = e.term_id AND t.is_active
WHERE e.day_of_week = $1`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list active day entries: %w", err)
	}
	return entries, nil
}

// CountForAssignment counts the weekly entries realised by an assignment.
func (r *ScheduleEntryRepository) CountForAssignment(ctx context.Context, assignment models.Assignment) (int, error) {
	const query = `SELECT COUNT(*) FROM schedule_entries WHERE class_id = $1 AND subject_id = $2 AND teacher_id = $3 AND term_id = $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignment.ClassID, assignment.SubjectID, assignment.TeacherID, assignment.TermID); err != nil {
		return 0, fmt.Errorf("count assignment entries: %w", err)
	}
	return count, nil
}

// DeleteByClassTerm removes the weekly set of a class for a term.
func (r *ScheduleEntryRepository) DeleteByClassTerm(ctx context.Context, exec sqlx.ExtContext, classID, termID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM schedule_entries WHERE class_id = $1 AND term_id = $2`, classID, termID); err != nil {
		return fmt.Errorf("delete class schedule entries: %w", err)
	}
	return nil
}

// DeleteForAssignment removes the entries realised by an assignment.
func (r *ScheduleEntryRepository) DeleteForAssignment(ctx context.Context, exec sqlx.ExtContext, assignment models.Assignment) (int64, error) {
	const query = `DELETE FROM schedule_entries WHERE class_id = $1 AND subject_id = $2 AND teacher_id = $3 AND term_id = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, assignment.ClassID, assignment.SubjectID, assignment.TeacherID, assignment.TermID)
	if err != nil {
		return 0, fmt.Errorf("delete assignment entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check deleted entry rows: %w", err)
	}
	return affected, nil
}

// InsertBatch writes generated entries, assigning ids and timestamps.
func (r *ScheduleEntryRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO schedule_entries (id, term_id, class_id, subject_id, teacher_id, day_of_week, slot_number, is_double_period, created_at, updated_at)
VALUES (:id, :term_id, :class_id, :subject_id, :teacher_id, :day_of_week, :slot_number, :is_double_period, :created_at, :updated_at)`

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	return nil
}
