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

var assignmentRowColumns = []string{"id", "teacher_id", "subject_id", "class_id", "term_id", "remaining_quota", "is_lab",
	"last_decayed_cycle", "version", "subject_name", "subject_group", "created_at", "updated_at"}

func TestAssignmentRepositoryListByClassTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(assignmentRowColumns).
		AddRow("a1", "t1", "sub-1", "class-1", "term-1", 10, true, nil, 3, "Chemistry", "SCIENCE", now, now).
		AddRow("a2", "t2", "sub-2", "class-1", "term-1", 4, false, "2026-W41", 1, "Religion Islam", "RELIGION", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(assignmentSelect + ` WHERE a.class_id = $1 AND a.term_id = $2`)).
		WithArgs("class-1", "term-1").
		WillReturnRows(rows)

	list, err := repo.ListByClassTerm(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsLab)
	assert.Nil(t, list[0].LastDecayedCycle)
	require.NotNil(t, list[1].LastDecayedCycle)
	assert.Equal(t, "2026-W41", *list[1].LastDecayedCycle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(assignmentSelect + ` WHERE a.id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec("INSERT INTO assignments").
		WithArgs(sqlmock.AnyArg(), "t1", "sub-1", "class-1", "term-1", 12, false, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.Assignment{TeacherID: "t1", SubjectID: "sub-1", ClassID: "class-1", TermID: "term-1", RemainingQuota: 12}
	require.NoError(t, repo.Create(context.Background(), assignment))
	assert.NotEmpty(t, assignment.ID)
	assert.Equal(t, 1, assignment.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryApplyDecayVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assignments SET remaining_quota = $1, last_decayed_cycle = $2`)).
		WithArgs(6, "2026-W42", sqlmock.AnyArg(), "a1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assignments SET remaining_quota = $1, last_decayed_cycle = $2`)).
		WithArgs(6, "2026-W42", sqlmock.AnyArg(), "a1", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ApplyDecay(context.Background(), nil, "a1", 6, "2026-W42", 3))
	err := repo.ApplyDecay(context.Background(), nil, "a1", 6, "2026-W42", 3)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUpdateQuota(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assignments SET remaining_quota = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`)).
		WithArgs(8, sqlmock.AnyArg(), "a1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateQuota(context.Background(), nil, "a1", 8, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}
