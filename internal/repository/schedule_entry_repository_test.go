package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

var entryRowColumns = []string{"id", "term_id", "class_id", "subject_id", "teacher_id", "day_of_week", "slot_number", "is_double_period", "created_at", "updated_at"}

func TestScheduleEntryRepositoryReplaceInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM schedule_entries WHERE class_id = $1 AND term_id = $2`)).
		WithArgs("class-1", "term-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO schedule_entries").
		WithArgs(sqlmock.AnyArg(), "term-1", "class-1", "sub-1", "t1", 1, 1, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO schedule_entries").
		WithArgs(sqlmock.AnyArg(), "term-1", "class-1", "sub-1", "t1", 1, 2, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	entries := []models.ScheduleEntry{
		{TermID: "term-1", ClassID: "class-1", SubjectID: "sub-1", TeacherID: "t1", DayOfWeek: 1, SlotNumber: 1, IsDoublePeriod: true},
		{TermID: "term-1", ClassID: "class-1", SubjectID: "sub-1", TeacherID: "t1", DayOfWeek: 1, SlotNumber: 2, IsDoublePeriod: true},
	}
	require.NoError(t, repo.DeleteByClassTerm(context.Background(), tx, "class-1", "term-1"))
	require.NoError(t, repo.InsertBatch(context.Background(), tx, entries))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryListByTeachers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM schedule_entries e WHERE e.term_id = $1 AND e.teacher_id = ANY($2)`)).
		WithArgs("term-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(entryRowColumns).AddRow("e1", "term-1", "class-2", "sub-1", "t1", 3, 4, false, now, now))

	entries, err := repo.ListByTeachers(context.Background(), "term-1", []string{"t1", "t2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "class-2", entries[0].ClassID)

	empty, err := repo.ListByTeachers(context.Background(), "term-1", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryAssignmentCountAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	assignment := models.Assignment{ClassID: "class-1", SubjectID: "sub-1", TeacherID: "t1", TermID: "term-1"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM schedule_entries WHERE class_id = $1 AND subject_id = $2 AND teacher_id = $3 AND term_id = $4`)).
		WithArgs("class-1", "sub-1", "t1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM schedule_entries WHERE class_id = $1 AND subject_id = $2 AND teacher_id = $3 AND term_id = $4`)).
		WithArgs("class-1", "sub-1", "t1", "term-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := repo.CountForAssignment(context.Background(), assignment)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	deleted, err := repo.DeleteForAssignment(context.Background(), nil, assignment)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryListActiveByDay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN terms t ON t.id = e.term_id AND t.is_active WHERE e.day_of_week = $1`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(entryRowColumns).
			AddRow("e1", "term-1", "class-1", "sub-1", "t1", 3, 1, false, now, now).
			AddRow("e2", "term-1", "class-2", "sub-2", "t2", 3, 1, false, now, now))

	entries, err := repo.ListActiveByDay(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
