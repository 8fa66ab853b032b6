package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/repository"
)

var decayNow = time.Date(2026, time.October, 16, 17, 30, 0, 0, time.UTC)

func TestDecayCycleLabel(t *testing.T) {
	assert.Equal(t, "2026-W42", DecayCycle(decayNow))
	assert.Equal(t, "2026-W53", DecayCycle(time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRunWeeklyDecayIsIdempotentWithinCycle(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := &decayAssignmentStub{items: []models.Assignment{
		{ID: "a-1", ClassID: "10A", RemainingQuota: 20, Version: 3},
	}}
	entries := &decayEntryStub{weekly: map[string]int{"a-1": 5}}
	svc := newDecayFixture(store, entries, tx, nil, nil)

	first, err := svc.RunWeeklyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReducedCount)
	assert.Equal(t, 15, store.items[0].RemainingQuota)
	assert.Equal(t, 4, store.items[0].Version)

	second, err := svc.RunWeeklyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.ReducedCount)
	assert.Equal(t, 1, second.SkippedCount)
	assert.Equal(t, 15, store.items[0].RemainingQuota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunWeeklyDecayCompletesCourse(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := &decayAssignmentStub{items: []models.Assignment{
		{ID: "a-1", ClassID: "10A", RemainingQuota: 3},
		{ID: "a-2", ClassID: "10B", RemainingQuota: 10},
	}}
	entries := &decayEntryStub{weekly: map[string]int{"a-1": 5, "a-2": 0}}
	directory := &directoryStub{admins: []models.User{{ID: "admin-1", Role: models.RoleAdmin}}}
	notify := &notifierStub{}
	offers := &courseTaskStub{}
	svc := newDecayFixture(store, entries, tx, directory, notify)
	svc.tasks = offers

	result, err := svc.RunWeeklyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ReducedCount)
	assert.Equal(t, 1, result.CompletedCount)
	assert.Equal(t, 0, store.items[0].RemainingQuota)
	assert.Equal(t, 10, store.items[1].RemainingQuota)
	assert.Equal(t, []string{"a-1"}, entries.deleted)
	assert.Equal(t, []string{"a-1"}, offers.courses)
	assert.Equal(t, dateOnly(decayNow), offers.from)
	assert.Equal(t, []string{"assignment.course_complete:admin-1"}, notify.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunWeeklyDecayNeverIncreasesQuota(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	store := &decayAssignmentStub{}
	weekly := make(map[string]int)
	for i, taught := range []int{0, 1, 7, 40} {
		id := string(rune('a' + i))
		store.items = append(store.items, models.Assignment{ID: id, ClassID: "10A", RemainingQuota: 6})
		weekly[id] = taught
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	svc := newDecayFixture(store, &decayEntryStub{weekly: weekly}, tx, nil, nil)

	_, err := svc.RunWeeklyDecay(context.Background())
	require.NoError(t, err)
	for _, a := range store.items {
		assert.GreaterOrEqual(t, a.RemainingQuota, 0)
		assert.LessOrEqual(t, a.RemainingQuota, 6)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunWeeklyDecayVersionConflictSkips(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	store := &decayAssignmentStub{
		items:    []models.Assignment{{ID: "a-1", ClassID: "10A", RemainingQuota: 8, Version: 1}},
		conflict: true,
	}
	svc := newDecayFixture(store, &decayEntryStub{weekly: map[string]int{"a-1": 2}}, tx, nil, nil)

	result, err := svc.RunWeeklyDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 8, store.items[0].RemainingQuota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunIfDueHonoursWeekdayAndHour(t *testing.T) {
	store := &decayAssignmentStub{}
	svc := newDecayFixture(store, &decayEntryStub{}, nil, nil, nil)
	cfg := DecayScheduleConfig{Weekday: time.Friday, Hour: 17}

	svc.now = func() time.Time { return decayNow.Add(-2 * time.Hour) }
	svc.runIfDue(context.Background(), cfg)
	assert.Equal(t, 0, store.listCalls)

	svc.now = func() time.Time { return decayNow }
	svc.runIfDue(context.Background(), cfg)
	svc.runIfDue(context.Background(), cfg)
	assert.Equal(t, 1, store.listCalls)
}

func newDecayFixture(store *decayAssignmentStub, entries *decayEntryStub, tx txProvider, directory roleDirectory, notify notifier) *WeeklyDecayService {
	svc := NewWeeklyDecayService(store, entries, nil, directory, notify, tx, nil, nil, nil, nil, "ADMIN")
	svc.now = func() time.Time { return decayNow }
	return svc
}

type decayAssignmentStub struct {
	items     []models.Assignment
	conflict  bool
	listCalls int
}

func (s *decayAssignmentStub) ListDecayable(ctx context.Context) ([]models.Assignment, error) {
	s.listCalls++
	var out []models.Assignment
	for _, a := range s.items {
		if a.RemainingQuota > 0 {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *decayAssignmentStub) ApplyDecay(ctx context.Context, exec sqlx.ExtContext, id string, quota int, cycle string, version int) error {
	if s.conflict {
		return repository.ErrVersionConflict
	}
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].Version == version {
			stamped := cycle
			s.items[i].RemainingQuota = quota
			s.items[i].LastDecayedCycle = &stamped
			s.items[i].Version++
			return nil
		}
	}
	return repository.ErrVersionConflict
}

type decayEntryStub struct {
	weekly  map[string]int
	deleted []string
}

func (s *decayEntryStub) CountForAssignment(ctx context.Context, assignment models.Assignment) (int, error) {
	return s.weekly[assignment.ID], nil
}

func (s *decayEntryStub) DeleteForAssignment(ctx context.Context, exec sqlx.ExtContext, assignment models.Assignment) (int64, error) {
	s.deleted = append(s.deleted, assignment.ID)
	return int64(s.weekly[assignment.ID]), nil
}

type courseTaskStub struct {
	courses []string
	from    time.Time
}

func (s *courseTaskStub) DeclineOpenForCourse(ctx context.Context, exec sqlx.ExtContext, course models.Assignment, from time.Time, reason string) (int64, error) {
	s.courses = append(s.courses, course.ID)
	s.from = from
	return 1, nil
}
