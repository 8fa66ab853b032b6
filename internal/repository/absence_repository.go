package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

const absenceSelect = `SELECT id, teacher_id, start_date, end_date, scope, status, processed_at, created_at, updated_at FROM absence_requests`

// AbsenceRepository reads leave requests owned by the surrounding application.
type AbsenceRepository struct {
	db *sqlx.DB
}

// NewAbsenceRepository constructs the repository.
func NewAbsenceRepository(db *sqlx.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

// FindByID loads one absence request.
func (r *AbsenceRepository) FindByID(ctx context.Context, id string) (*models.AbsenceRequest, error) {
	var absence models.AbsenceRequest
	if err := r.db.GetContext(ctx, &absence, absenceSelect+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get absence request: %w", err)
	}
	return &absence, nil
}

// MarkProcessed claims an approved absence. It returns sql.ErrNoRows when it was already claimed.
func (r *AbsenceRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE absence_requests SET processed_at = $1, updated_at = $1 WHERE id = $2 AND processed_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark absence processed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check processed absence rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListApprovedOn returns approved absences whose range includes date.
func (r *AbsenceRepository) ListApprovedOn(ctx context.Context, date time.Time) ([]models.AbsenceRequest, error) {
	var absences []models.AbsenceRequest
	query := absenceSelect + ` WHERE status = $1 AND start_date <= $2 AND end_date >= $2`
	if err := r.db.SelectContext(ctx, &absences, query, models.AbsenceStatusApproved, date); err != nil {
		return nil, fmt.Errorf("list approved absences: %w", err)
	}
	return absences, nil
}
