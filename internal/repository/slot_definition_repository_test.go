package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSlotDefinitionRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotDefinitionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "sequence", "slot_number", "start_time", "end_time", "kind"}).
		AddRow("s1", 1, 1, "07:30", "08:10", "PERIOD").
		AddRow("s2", 2, 0, "08:10", "08:25", "BREAK")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, sequence, slot_number, start_time, end_time, kind FROM slot_definitions ORDER BY sequence ASC`)).
		WillReturnRows(rows)

	slots, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].IsAcademic())
	assert.Equal(t, models.SlotKindBreak, slots[1].Kind)
	assert.False(t, slots[1].IsAcademic())
	assert.NoError(t, mock.ExpectationsWereMet())
}
