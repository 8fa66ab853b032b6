package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/lock"
)

type decayAssignmentStore interface {
	ListDecayable(ctx context.Context) ([]models.Assignment, error)
	ApplyDecay(ctx context.Context, exec sqlx.ExtContext, id string, quota int, cycle string, version int) error
}

type decayEntryStore interface {
	CountForAssignment(ctx context.Context, assignment models.Assignment) (int, error)
	DeleteForAssignment(ctx context.Context, exec sqlx.ExtContext, assignment models.Assignment) (int64, error)
}

type courseTaskCanceller interface {
	DeclineOpenForCourse(ctx context.Context, exec sqlx.ExtContext, course models.Assignment, from time.Time, reason string) (int64, error)
}

const reasonCourseCompleted = "course completed"

// DecayScheduleConfig decides when the background decay fires.
type DecayScheduleConfig struct {
	Weekday       time.Weekday
	Hour          int
	CheckInterval time.Duration
}

// WeeklyDecayService subtracts the periods taught each week from assignment quotas.
type WeeklyDecayService struct {
	assignments decayAssignmentStore
	entries     decayEntryStore
	tasks       courseTaskCanceller
	directory   roleDirectory
	notifier    notifier
	tx          txProvider
	locker      lock.Locker
	cache       cacheInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	adminRole   string
	now         func() time.Time

	mu        sync.Mutex
	lastCycle string
}

// NewWeeklyDecayService wires the decay process.
func NewWeeklyDecayService(
	assignments decayAssignmentStore,
	entries decayEntryStore,
	tasks courseTaskCanceller,
	directory roleDirectory,
	notify notifier,
	tx txProvider,
	locker lock.Locker,
	cache cacheInvalidator,
	metrics *MetricsService,
	logger *zap.Logger,
	adminRole string,
) *WeeklyDecayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if adminRole == "" {
		adminRole = string(models.RoleAdmin)
	}
	return &WeeklyDecayService{
		assignments: assignments,
		entries:     entries,
		tasks:       tasks,
		directory:   directory,
		notifier:    notify,
		tx:          tx,
		locker:      locker,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		adminRole:   adminRole,
		now:         time.Now,
	}
}

// DecayCycle labels the ISO week containing t, e.g. 2026-W42.
func DecayCycle(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

type courseCompleteNotice struct {
	AssignmentID string `json:"assignment_id"`
	TeacherID    string `json:"teacher_id"`
	SubjectID    string `json:"subject_id"`
	ClassID      string `json:"class_id"`
	TermID       string `json:"term_id"`
	Cycle        string `json:"cycle"`
}

// RunWeeklyDecay applies one week of taught periods to every assignment not yet decayed this cycle.
func (s *WeeklyDecayService) RunWeeklyDecay(ctx context.Context) (*dto.DecayResult, error) {
	started := time.Now()
	cycle := DecayCycle(s.now())

	assignments, err := s.assignments.ListDecayable(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list assignments for decay")
	}

	result := &dto.DecayResult{Cycle: cycle}
	for _, assignment := range assignments {
		if assignment.LastDecayedCycle != nil && *assignment.LastDecayedCycle == cycle {
			result.SkippedCount++
			continue
		}
		quota, err := s.decayAssignment(ctx, assignment, cycle)
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				result.SkippedCount++
				s.logger.Info("decay skipped concurrent update", zap.String("assignment_id", assignment.ID))
				continue
			}
			result.FailedCount++
			s.logger.Warn("decay failed", zap.String("assignment_id", assignment.ID), zap.Error(err))
			continue
		}
		if quota < assignment.RemainingQuota {
			result.ReducedCount++
		}
		if quota == 0 {
			result.CompletedCount++
			notifyRole(ctx, s.directory, s.notifier, s.adminRole, EventCourseComplete, courseCompleteNotice{
				AssignmentID: assignment.ID,
				TeacherID:    assignment.TeacherID,
				SubjectID:    assignment.SubjectID,
				ClassID:      assignment.ClassID,
				TermID:       assignment.TermID,
				Cycle:        cycle,
			}, s.logger)
		}
	}

	if result.CompletedCount > 0 && s.cache != nil {
		_ = s.cache.Invalidate(ctx, conflictCachePattern)
	}
	s.metrics.RecordDecay(result.ReducedCount, result.CompletedCount, time.Since(started))
	s.logger.Info("weekly decay finished",
		zap.String("cycle", cycle),
		zap.Int("reduced", result.ReducedCount),
		zap.Int("completed", result.CompletedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}

func (s *WeeklyDecayService) decayAssignment(ctx context.Context, assignment models.Assignment, cycle string) (quota int, err error) {
	unlock, err := s.locker.Lock(ctx, lock.ClassKey(assignment.ClassID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	weekly, err := s.entries.CountForAssignment(ctx, assignment)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to count weekly periods")
	}
	quota = assignment.RemainingQuota - weekly
	if quota < 0 {
		quota = 0
	}

	if s.tx == nil {
		return 0, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.assignments.ApplyDecay(ctx, tx, assignment.ID, quota, cycle, assignment.Version); err != nil {
		return 0, err
	}
	if quota == 0 {
		if _, err = s.entries.DeleteForAssignment(ctx, tx, assignment); err != nil {
			return 0, appErrors.Persistence(err, "failed to clear completed course")
		}
		if s.tasks != nil {
			if _, err = s.tasks.DeclineOpenForCourse(ctx, tx, assignment, dateOnly(s.now()), reasonCourseCompleted); err != nil {
				return 0, appErrors.Persistence(err, "failed to withdraw offers of completed course")
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, appErrors.Persistence(err, "failed to commit decay")
	}
	return quota, nil
}

// StartScheduler boots a goroutine that runs the decay once per cycle after the configured weekday and hour.
func (s *WeeklyDecayService) StartScheduler(ctx context.Context, cfg DecayScheduleConfig) {
	if cfg.CheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runIfDue(ctx, cfg)
			}
		}
	}()
}

func (s *WeeklyDecayService) runIfDue(ctx context.Context, cfg DecayScheduleConfig) {
	now := s.now()
	if now.Weekday() != cfg.Weekday || now.Hour() < cfg.Hour {
		return
	}
	cycle := DecayCycle(now)

	s.mu.Lock()
	if s.lastCycle == cycle {
		s.mu.Unlock()
		return
	}
	s.lastCycle = cycle
	s.mu.Unlock()

	if _, err := s.RunWeeklyDecay(ctx); err != nil {
		s.logger.Sugar().Warnw("scheduled decay failed", "cycle", cycle, "error", err)
		s.mu.Lock()
		s.lastCycle = ""
		s.mu.Unlock()
	}
}
