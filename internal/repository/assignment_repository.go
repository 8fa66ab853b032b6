package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

// ErrVersionConflict is returned when an assignment changed since it was read.
var ErrVersionConflict = errors.New("assignment version conflict")

const assignmentSelect = `SELECT a.id, a.teacher_id, a.subject_id, a.class_id, a.term_id, a.remaining_quota, a.is_lab,
       a.last_decayed_cycle, a.version, s.name AS subject_name, s.subject_group, a.created_at, a.updated_at
FROM assignments a
JOIN subjects s ON s.id = a.subject_id`

// AssignmentRepository persists teacher quota assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads one assignment.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, assignmentSelect+` WHERE a.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &assignment, nil
}

// ListByClassTerm returns the assignments of a class for one term.
func (r *AssignmentRepository) ListByClassTerm(ctx context.Context, classID, termID string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	query := assignmentSelect + ` WHERE a.class_id = $1 AND a.term_id = $2 ORDER BY a.remaining_quota DESC, a.subject_id ASC`
	if err := r.db.SelectContext(ctx, &assignments, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list class assignments: %w", err)
	}
	return assignments, nil
}

// ListBySubjectClass returns assignments of the active term teaching a subject to a class.
func (r *AssignmentRepository) ListBySubjectClass(ctx context.Context, subjectID, classID string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	query := assignmentSelect + `
JOIN terms t ON t.id = a.term_id AND t.is_active
WHERE a.subject_id = $1 AND a.class_id = $2`
	if err := r.db.SelectContext(ctx, &assignments, query, subjectID, classID); err != nil {
		return nil, fmt.Errorf("list subject assignments: %w", err)
	}
	return assignments, nil
}

// ListDecayable returns active-term assignments that still owe periods.
func (r *AssignmentRepository) ListDecayable(ctx context.Context) ([]models.Assignment, error) {
	var assignments []models.Assignment
	query := assignmentSelect + `
JOIN terms t ON t.id = a.term_id AND t.is_active
WHERE a.remaining_quota > 0
ORDER BY a.class_id ASC, a.id ASC`
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list decayable assignments: %w", err)
	}
	return assignments, nil
}

// Create inserts a new assignment at version 1.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	assignment.Version = 1

	const query = `INSERT INTO assignments (id, teacher_id, subject_id, class_id, term_id, remaining_quota, is_lab, version, created_at, updated_at)
VALUES (:id, :teacher_id, :subject_id, :class_id, :term_id, :remaining_quota, :is_lab, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// UpdateQuota sets the remaining quota when the stored version still matches.
func (r *AssignmentRepository) UpdateQuota(ctx context.Context, exec sqlx.ExtContext, id string, quota, version int) error {
	const query = `UPDATE assignments SET remaining_quota = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, quota, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("update assignment quota: %w", err)
	}
	return checkVersioned(result)
}

// ApplyDecay stores a decayed quota and stamps the cycle it was decayed for.
func (r *AssignmentRepository) ApplyDecay(ctx context.Context, exec sqlx.ExtContext, id string, quota int, cycle string, version int) error {
	const query = `UPDATE assignments SET remaining_quota = $1, last_decayed_cycle = $2, version = version + 1, updated_at = $3
WHERE id = $4 AND version = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, quota, cycle, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("apply assignment decay: %w", err)
	}
	return checkVersioned(result)
}

func checkVersioned(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assignment rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
