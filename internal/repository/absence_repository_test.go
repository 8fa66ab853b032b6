package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

func TestAbsenceRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "start_date", "end_date", "scope", "status", "processed_at", "created_at", "updated_at"}).
		AddRow("abs-1", "t1", day, day, "FIRST_HALF", "APPROVED", nil, day, day)
	mock.ExpectQuery(regexp.QuoteMeta(absenceSelect + ` WHERE id = $1`)).
		WithArgs("abs-1").
		WillReturnRows(rows)

	absence, err := repo.FindByID(context.Background(), "abs-1")
	require.NoError(t, err)
	assert.Equal(t, models.AbsenceScopeFirstHalf, absence.Scope)
	assert.Equal(t, models.AbsenceStatusApproved, absence.Status)
	assert.Nil(t, absence.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryMarkProcessedOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	at := time.Now().UTC()
	query := regexp.QuoteMeta(`UPDATE absence_requests SET processed_at = $1, updated_at = $1 WHERE id = $2 AND processed_at IS NULL`)
	mock.ExpectExec(query).WithArgs(at, "abs-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(at, "abs-1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkProcessed(context.Background(), "abs-1", at))
	err := repo.MarkProcessed(context.Background(), "abs-1", at)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
