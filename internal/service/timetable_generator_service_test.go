package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

func TestTimetableGeneratorPlacesLabDoubles(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	entries := &timetableStoreStub{}
	svc := newGeneratorFixture(generatorFixture{
		tx:      tx,
		entries: entries,
		assignments: []models.Assignment{
			{ID: "a-chem", TeacherID: "t-chem", SubjectID: "chemistry", RemainingQuota: 10, IsLab: true},
			{ID: "a-math", TeacherID: "t-math", SubjectID: "math", RemainingQuota: 5},
		},
	})

	resp, err := svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, 15, resp.PlacedCount)
	assert.GreaterOrEqual(t, resp.DoublePeriods, 1)
	assert.Empty(t, resp.Warnings)

	perDay := make(map[int]int)
	seen := make(map[slotKey]bool)
	for _, entry := range entries.inserted {
		perDay[entry.DayOfWeek]++
		key := slotKey{Day: entry.DayOfWeek, Slot: entry.SlotNumber}
		assert.False(t, seen[key], "class slot used twice")
		seen[key] = true
		assert.NotEqual(t, 3, entry.SlotNumber, "break slot must stay empty")
	}
	for day, count := range perDay {
		assert.LessOrEqual(t, count, 8, "day %d overloaded", day)
	}

	for _, entry := range entries.inserted {
		if entry.IsDoublePeriod {
			assert.True(t, hasPartner(entries.inserted, entry), "double period without adjacent partner")
		}
	}
	assert.True(t, entries.cleared)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorRejectsOverCapacity(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	svc := newGeneratorFixture(generatorFixture{
		tx: tx,
		assignments: []models.Assignment{
			{ID: "a-1", TeacherID: "t-1", SubjectID: "math", RemainingQuota: 30},
			{ID: "a-2", TeacherID: "t-2", SubjectID: "physics", RemainingQuota: 11},
		},
	})

	_, err := svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorAvoidsTeacherBookedElsewhere(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	entries := &timetableStoreStub{}
	for day := 1; day <= 5; day++ {
		for _, slot := range []int{1, 2, 4, 5, 6, 7} {
			entries.bookings = append(entries.bookings, models.ScheduleEntry{
				ClassID: "class-2", TeacherID: "t-shared", DayOfWeek: day, SlotNumber: slot,
			})
		}
	}
	svc := newGeneratorFixture(generatorFixture{
		tx:      tx,
		entries: entries,
		assignments: []models.Assignment{
			{ID: "a-1", TeacherID: "t-shared", SubjectID: "history", RemainingQuota: 15},
		},
	})

	resp, err := svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	for _, entry := range entries.inserted {
		assert.Contains(t, []int{8, 9}, entry.SlotNumber)
	}
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, 15, resp.Warnings[0].Requested)
	assert.Equal(t, 10, resp.Warnings[0].Placed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorUnknownTerm(t *testing.T) {
	svc := newGeneratorFixture(generatorFixture{termErr: sql.ErrNoRows})

	_, err := svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableGeneratorUniqueViolationIsConflict(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	svc := newGeneratorFixture(generatorFixture{
		tx:          tx,
		entries:     &timetableStoreStub{insertErr: &pq.Error{Code: "23505"}},
		assignments: []models.Assignment{{ID: "a-1", TeacherID: "t-1", SubjectID: "math", RemainingQuota: 2}},
	})

	_, err := svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorRefusesWhileSubstitutionsOpen(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	entries := &timetableStoreStub{}
	open := &openSubstitutionStub{count: 2}
	svc := newGeneratorFixture(generatorFixture{
		tx:          tx,
		entries:     entries,
		open:        open,
		assignments: []models.Assignment{{ID: "a-1", TeacherID: "t-1", SubjectID: "math", RemainingQuota: 2}},
	})

	_, err := svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.False(t, entries.cleared, "entries must survive while substitutions point at them")
	assert.Equal(t, "class-1", open.classID)
	assert.NoError(t, mock.ExpectationsWereMet())

	open.count = 0
	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Generate(context.Background(), "class-1", dto.GenerateTimetableRequest{TermID: "term-1"})
	require.NoError(t, err)
	assert.True(t, entries.cleared)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Fixtures ---

type generatorFixture struct {
	tx          txProvider
	entries     *timetableStoreStub
	open        openSubstitutionCounter
	assignments []models.Assignment
	termErr     error
}

func newGeneratorFixture(cfg generatorFixture) *TimetableGeneratorService {
	if cfg.entries == nil {
		cfg.entries = &timetableStoreStub{}
	}
	return NewTimetableGeneratorService(
		termReaderStub{err: cfg.termErr},
		assignmentListStub{items: cfg.assignments},
		slotCatalogStub{items: testSlotCatalog()},
		cfg.entries,
		cfg.open,
		cfg.tx,
		nil,
		nil,
		nil,
		nil,
		nil,
		TimetableGeneratorConfig{DaysPerWeek: 5},
	)
}

// testSlotCatalog is eight periods with a break after period two.
func testSlotCatalog() []models.SlotDefinition {
	return []models.SlotDefinition{
		{ID: "s1", Sequence: 1, SlotNumber: 1, Kind: models.SlotKindPeriod},
		{ID: "s2", Sequence: 2, SlotNumber: 2, Kind: models.SlotKindPeriod},
		{ID: "s3", Sequence: 3, SlotNumber: 3, Kind: models.SlotKindBreak},
		{ID: "s4", Sequence: 4, SlotNumber: 4, Kind: models.SlotKindPeriod},
		{ID: "s5", Sequence: 5, SlotNumber: 5, Kind: models.SlotKindPeriod},
		{ID: "s6", Sequence: 6, SlotNumber: 6, Kind: models.SlotKindPeriod},
		{ID: "s7", Sequence: 7, SlotNumber: 7, Kind: models.SlotKindPeriod},
		{ID: "s8", Sequence: 8, SlotNumber: 8, Kind: models.SlotKindPeriod},
		{ID: "s9", Sequence: 9, SlotNumber: 9, Kind: models.SlotKindPeriod},
	}
}

func hasPartner(entries []models.ScheduleEntry, entry models.ScheduleEntry) bool {
	for _, other := range entries {
		if other.IsDoublePeriod && other.DayOfWeek == entry.DayOfWeek && other.SubjectID == entry.SubjectID &&
			(other.SlotNumber == entry.SlotNumber+1 || other.SlotNumber == entry.SlotNumber-1) {
			return true
		}
	}
	return false
}

type openSubstitutionStub struct {
	count   int
	classID string
}

func (s *openSubstitutionStub) CountOpenForClass(ctx context.Context, classID string, from time.Time) (int, error) {
	s.classID = classID
	return s.count, nil
}

type termReaderStub struct {
	err error
}

func (s termReaderStub) FindTerm(ctx context.Context, id string) (*models.Term, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Term{ID: id, IsActive: true}, nil
}

type assignmentListStub struct {
	items []models.Assignment
}

func (s assignmentListStub) ListByClassTerm(ctx context.Context, classID, termID string) ([]models.Assignment, error) {
	out := make([]models.Assignment, len(s.items))
	copy(out, s.items)
	return out, nil
}

type slotCatalogStub struct {
	items []models.SlotDefinition
}

func (s slotCatalogStub) List(ctx context.Context) ([]models.SlotDefinition, error) {
	return s.items, nil
}

type timetableStoreStub struct {
	bookings  []models.ScheduleEntry
	inserted  []models.ScheduleEntry
	cleared   bool
	insertErr error
}

func (s *timetableStoreStub) ListByTeachers(ctx context.Context, termID string, teacherIDs []string) ([]models.ScheduleEntry, error) {
	return s.bookings, nil
}

func (s *timetableStoreStub) DeleteByClassTerm(ctx context.Context, exec sqlx.ExtContext, classID, termID string) error {
	s.cleared = true
	return nil
}

func (s *timetableStoreStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, entries...)
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (p *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}
