package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

func TestAssignmentServiceCreateWithinCapacity(t *testing.T) {
	repo := &assignmentStoreStub{items: []models.Assignment{
		{ID: "a-1", ClassID: "10A", TermID: "term-1", SubjectName: "Mathematics", RemainingQuota: 100},
	}}
	svc := newAssignmentFixture(repo, true)

	created, err := svc.Create(context.Background(), dto.CreateAssignmentRequest{
		TeacherID: "T1", SubjectID: "physics", ClassID: "10A", TermID: "term-1", RemainingQuota: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "Physics", created.SubjectName)
	assert.Len(t, repo.items, 2)
}

func TestAssignmentServiceCreateRejectsOverCapacity(t *testing.T) {
	repo := &assignmentStoreStub{items: []models.Assignment{
		{ID: "a-1", ClassID: "10A", TermID: "term-1", SubjectName: "Mathematics", RemainingQuota: 100},
	}}
	svc := newAssignmentFixture(repo, true)

	_, err := svc.Create(context.Background(), dto.CreateAssignmentRequest{
		TeacherID: "T1", SubjectID: "physics", ClassID: "10A", TermID: "term-1", RemainingQuota: 61,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))
	assert.Len(t, repo.items, 1)
}

func TestAssignmentServiceInactiveTermHasNoCapacity(t *testing.T) {
	svc := newAssignmentFixture(&assignmentStoreStub{}, false)

	_, err := svc.Create(context.Background(), dto.CreateAssignmentRequest{
		TeacherID: "T1", SubjectID: "physics", ClassID: "10A", TermID: "term-1", RemainingQuota: 1,
	})
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))
}

func TestAssignmentServiceUpdateQuota(t *testing.T) {
	repo := &assignmentStoreStub{items: []models.Assignment{
		{ID: "a-1", ClassID: "10A", TermID: "term-1", SubjectName: "Mathematics", RemainingQuota: 100, Version: 2},
		{ID: "a-2", ClassID: "10A", TermID: "term-1", SubjectName: "Physics", RemainingQuota: 50, Version: 1},
	}}
	svc := newAssignmentFixture(repo, true)

	updated, err := svc.UpdateQuota(context.Background(), "a-1", dto.UpdateQuotaRequest{RemainingQuota: 110, Version: 2})
	require.NoError(t, err)
	assert.Equal(t, 110, updated.RemainingQuota)
	assert.Equal(t, 3, updated.Version)

	_, err = svc.UpdateQuota(context.Background(), "a-1", dto.UpdateQuotaRequest{RemainingQuota: 120, Version: 3})
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))

	_, err = svc.UpdateQuota(context.Background(), "a-2", dto.UpdateQuotaRequest{RemainingQuota: 10, Version: 7})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.UpdateQuota(context.Background(), "missing", dto.UpdateQuotaRequest{RemainingQuota: 1, Version: 1})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func newAssignmentFixture(repo *assignmentStoreStub, activeTerm bool) *AssignmentService {
	svc := NewAssignmentService(repo, assignmentDirectoryStub{activeTerm: activeTerm}, NewCapacityCalculator(8), nil, nil, nil)
	// February 2026 has 20 weekdays, so a class holds 160 periods.
	svc.now = func() time.Time { return time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

type assignmentStoreStub struct {
	items []models.Assignment
}

func (s *assignmentStoreStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	for _, a := range s.items {
		if a.ID == id {
			copied := a
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStoreStub) ListByClassTerm(ctx context.Context, classID, termID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range s.items {
		if a.ClassID == classID && a.TermID == termID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *assignmentStoreStub) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.ID = "new"
	assignment.Version = 1
	s.items = append(s.items, *assignment)
	return nil
}

func (s *assignmentStoreStub) UpdateQuota(ctx context.Context, exec sqlx.ExtContext, id string, quota, version int) error {
	for i := range s.items {
		if s.items[i].ID == id {
			if s.items[i].Version != version {
				return repository.ErrVersionConflict
			}
			s.items[i].RemainingQuota = quota
			s.items[i].Version++
			return nil
		}
	}
	return repository.ErrVersionConflict
}

type assignmentDirectoryStub struct {
	activeTerm bool
}

func (s assignmentDirectoryStub) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	return &models.Teacher{ID: id, Active: true}, nil
}

func (s assignmentDirectoryStub) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	return &models.Subject{ID: id, Name: "Physics"}, nil
}

func (s assignmentDirectoryStub) FindTerm(ctx context.Context, id string) (*models.Term, error) {
	return &models.Term{ID: id, IsActive: s.activeTerm}, nil
}
