package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/lock"
)

type assignmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByClassTerm(ctx context.Context, classID, termID string) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	UpdateQuota(ctx context.Context, exec sqlx.ExtContext, id string, quota, version int) error
}

type assignmentDirectory interface {
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
	FindTerm(ctx context.Context, id string) (*models.Term, error)
}

// AssignmentService guards assignment quotas with the monthly capacity of the class.
type AssignmentService struct {
	repo      assignmentStore
	directory assignmentDirectory
	capacity  CapacityCalculator
	locker    lock.Locker
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssignmentService constructs the service.
func NewAssignmentService(repo assignmentStore, directory assignmentDirectory, capacity CapacityCalculator, locker lock.Locker, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &AssignmentService{
		repo:      repo,
		directory: directory,
		capacity:  capacity,
		locker:    locker,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Create registers a new assignment when the class still has capacity for it.
func (s *AssignmentService) Create(ctx context.Context, req dto.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	term, err := s.loadTerm(ctx, req.TermID)
	if err != nil {
		return nil, err
	}
	teacher, err := s.directory.FindTeacher(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher not found")
		}
		return nil, appErrors.Persistence(err, "failed to load teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is inactive")
	}
	subject, err := s.directory.FindSubject(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject not found")
		}
		return nil, appErrors.Persistence(err, "failed to load subject")
	}

	unlock, err := s.locker.Lock(ctx, lock.ClassKey(req.ClassID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "class timetable is busy")
	}
	defer unlock()

	existing, err := s.repo.ListByClassTerm(ctx, req.ClassID, req.TermID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load class assignments")
	}
	assignment := &models.Assignment{
		TeacherID:      req.TeacherID,
		SubjectID:      req.SubjectID,
		ClassID:        req.ClassID,
		TermID:         req.TermID,
		RemainingQuota: req.RemainingQuota,
		IsLab:          req.IsLab,
		SubjectName:    subject.Name,
		SubjectGroup:   subject.SubjectGroup,
	}
	if err := s.capacity.ValidateClassLoad(s.now(), term.IsActive, append(existing, *assignment)); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, assignment); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already holds this subject for the class")
		}
		return nil, appErrors.Persistence(err, "failed to create assignment")
	}
	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("class_id", assignment.ClassID),
		zap.Int("remaining_quota", assignment.RemainingQuota),
	)
	return assignment, nil
}

// UpdateQuota changes the remaining quota of an assignment under its version check.
func (s *AssignmentService) UpdateQuota(ctx context.Context, id string, req dto.UpdateQuotaRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quota payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Persistence(err, "failed to load assignment")
	}
	if current.Version != req.Version {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment was modified, reload and retry")
	}
	term, err := s.loadTerm(ctx, current.TermID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.ClassKey(current.ClassID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "class timetable is busy")
	}
	defer unlock()

	siblings, err := s.repo.ListByClassTerm(ctx, current.ClassID, current.TermID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load class assignments")
	}
	load := make([]models.Assignment, 0, len(siblings))
	for _, a := range siblings {
		if a.ID == current.ID {
			a.RemainingQuota = req.RemainingQuota
		}
		load = append(load, a)
	}
	if err := s.capacity.ValidateClassLoad(s.now(), term.IsActive, load); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateQuota(ctx, nil, current.ID, req.RemainingQuota, req.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment was modified, reload and retry")
		}
		return nil, appErrors.Persistence(err, "failed to update quota")
	}
	current.RemainingQuota = req.RemainingQuota
	current.Version++
	return current, nil
}

func (s *AssignmentService) loadTerm(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.directory.FindTerm(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "term not found")
		}
		return nil, appErrors.Persistence(err, "failed to load term")
	}
	return term, nil
}
