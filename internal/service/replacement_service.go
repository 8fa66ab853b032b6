package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/jobs"
	"github.com/noah-isme/sma-scheduling-engine/pkg/lock"
)

const (
	reasonDeliveryFailed = "offer delivery failed"
	reasonOfferExpired   = "offer expired"
	reasonTokenDecline   = "declined via offer link"
	reasonAlreadyBooked  = "substitute already booked for that slot"

	substituteSlotConstraint = "uq_schedule_overrides_substitute_slot"
)

var errSubstituteBooked = errors.New("substitute already booked")

type absenceStore interface {
	FindByID(ctx context.Context, id string) (*models.AbsenceRequest, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	ListApprovedOn(ctx context.Context, date time.Time) ([]models.AbsenceRequest, error)
}

type replacementEntryReader interface {
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleEntry, error)
	ListActiveByDay(ctx context.Context, dayOfWeek int) ([]models.ScheduleEntry, error)
}

type subjectAssignmentReader interface {
	ListBySubjectClass(ctx context.Context, subjectID, classID string) ([]models.Assignment, error)
}

type replacementTaskStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, task *models.ReplacementTask) error
	FindByID(ctx context.Context, id string) (*models.ReplacementTask, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.ReplacementState, reason *string) error
	ListByAbsence(ctx context.Context, absenceID string) ([]models.ReplacementTask, error)
	ListByOccurrence(ctx context.Context, entryID string, date time.Time) ([]models.ReplacementTask, error)
	ListCommittedOn(ctx context.Context, date time.Time) ([]models.ReplacementTask, error)
	ListAcceptedByCandidate(ctx context.Context, exec sqlx.ExtContext, candidateID string, date time.Time) ([]models.ReplacementTask, error)
	ListExpiredPending(ctx context.Context, before time.Time) ([]models.ReplacementTask, error)
}

type overrideWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, override *models.ScheduleOverride) error
}

type teacherDirectory interface {
	ListActiveTeachers(ctx context.Context) ([]models.Teacher, error)
	ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, recipientID, event string, payload interface{}) error
}

type offerTokens interface {
	Issue(taskID, candidateID string, expiresAt time.Time) (string, error)
	Parse(token string) (*models.OfferClaims, error)
}

// ReplacementConfig tunes candidate search and offer lifetime.
type ReplacementConfig struct {
	PeriodsPerDay int
	OfferTTL      time.Duration
	MaxAttempts   int
	AdminRole     string
}

// ReplacementDeps bundles the collaborators of the replacement engine.
type ReplacementDeps struct {
	Absences    absenceStore
	Entries     replacementEntryReader
	Assignments subjectAssignmentReader
	Tasks       replacementTaskStore
	Overrides   overrideWriter
	Directory   teacherDirectory
	Notifier    notifier
	Tokens      offerTokens
	Tx          txProvider
	Locker      lock.Locker
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// ReplacementService finds substitutes for the lessons of absent teachers.
type ReplacementService struct {
	absences    absenceStore
	entries     replacementEntryReader
	assignments subjectAssignmentReader
	tasks       replacementTaskStore
	overrides   overrideWriter
	directory   teacherDirectory
	notifier    notifier
	tokens      offerTokens
	tx          txProvider
	locker      lock.Locker
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ReplacementConfig
	now         func() time.Time
}

// NewReplacementService wires the replacement engine.
func NewReplacementService(deps ReplacementDeps, cfg ReplacementConfig) *ReplacementService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if cfg.PeriodsPerDay <= 0 {
		cfg.PeriodsPerDay = DefaultPeriodsPerDay
	}
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 2 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 25
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = string(models.RoleAdmin)
	}
	return &ReplacementService{
		absences:    deps.Absences,
		entries:     deps.Entries,
		assignments: deps.Assignments,
		tasks:       deps.Tasks,
		overrides:   deps.Overrides,
		directory:   deps.Directory,
		notifier:    deps.Notifier,
		tokens:      deps.Tokens,
		tx:          deps.Tx,
		locker:      deps.Locker,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// ProcessApprovedAbsence offers every affected occurrence of an approved absence to a substitute.
// Occurrences are handled one after another; a failure on one is reported and does not stop the rest.
func (s *ReplacementService) ProcessApprovedAbsence(ctx context.Context, absenceID string) (*dto.ProcessAbsenceResponse, error) {
	absence, err := s.absences.FindByID(ctx, absenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "absence not found")
		}
		return nil, appErrors.Persistence(err, "failed to load absence")
	}
	if err := validateAbsence(absence); err != nil {
		return nil, err
	}

	entries, err := s.entries.ListActiveByTeacher(ctx, absence.TeacherID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load teacher timetable")
	}
	occurrences := expandOccurrences(*absence, entries, s.cfg.PeriodsPerDay)

	// Nothing below the claim fails the whole absence, so a retried call never finds it half claimed.
	if err := s.absences.MarkProcessed(ctx, absence.ID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "absence already processed")
		}
		return nil, appErrors.Persistence(err, "failed to claim absence")
	}

	resp := &dto.ProcessAbsenceResponse{
		AbsenceID:           absence.ID,
		OccurrencesAffected: len(occurrences),
		Failures:            make([]dto.OccurrenceFailure, 0),
	}
	for _, occ := range occurrences {
		res, err := s.resolveOccurrence(ctx, occ)
		if err != nil {
			s.logger.Warn("occurrence replacement failed",
				zap.String("absence_id", absence.ID),
				zap.String("schedule_entry_id", occ.Entry.ID),
				zap.String("date", occ.dateLabel()),
				zap.Error(err),
			)
			resp.Failures = append(resp.Failures, dto.OccurrenceFailure{
				ScheduleEntryID: occ.Entry.ID,
				Date:            occ.dateLabel(),
				SlotNumber:      occ.Entry.SlotNumber,
				Message:         appErrors.FromError(err).Message,
			})
			continue
		}
		if res.escalated {
			resp.Escalated++
		} else {
			resp.OffersSent++
		}
	}

	s.logger.Info("absence processed",
		zap.String("absence_id", absence.ID),
		zap.Int("occurrences", resp.OccurrencesAffected),
		zap.Int("offers", resp.OffersSent),
		zap.Int("escalated", resp.Escalated),
	)
	return resp, nil
}

// ListByAbsence returns the replacement history of an absence.
func (s *ReplacementService) ListByAbsence(ctx context.Context, absenceID string) ([]models.ReplacementTask, error) {
	tasks, err := s.tasks.ListByAbsence(ctx, absenceID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load replacement tasks")
	}
	return tasks, nil
}

// Accept confirms a pending offer and records date-scoped overrides for the occurrence.
func (s *ReplacementService) Accept(ctx context.Context, taskID string, req dto.AcceptReplacementRequest) (*models.ReplacementTask, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept payload")
	}
	task, err := s.loadPending(ctx, taskID, req.CandidateID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.ClassKey(task.ClassID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "class timetable is busy")
	}
	defer unlock()

	unlockTeacher, err := s.locker.Lock(ctx, lock.TeacherKey(req.CandidateID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "substitute schedule is busy")
	}
	defer unlockTeacher()

	if err := s.commitAcceptance(ctx, task); err != nil {
		if errors.Is(err, errSubstituteBooked) {
			return nil, s.passOnBookedOffer(ctx, task)
		}
		return nil, err
	}
	task.State = models.ReplacementAccepted
	s.metrics.RecordResolution(string(models.ReplacementAccepted))

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, task.OriginalTeacherID, EventReplacementAccepted, task); err != nil {
			s.logger.Warn("acceptance notice failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return task, nil
}

// Decline refuses a pending offer and passes the occurrence to the next candidate.
func (s *ReplacementService) Decline(ctx context.Context, taskID string, req dto.DeclineReplacementRequest) (*dto.DeclineReplacementResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decline payload")
	}
	task, err := s.loadPending(ctx, taskID, req.CandidateID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.ClassKey(task.ClassID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "class timetable is busy")
	}
	defer unlock()

	return s.declineAndCascade(ctx, task, req.Reason)
}

// Respond answers an offer using the signed token it carried.
func (s *ReplacementService) Respond(ctx context.Context, req dto.RespondReplacementRequest) (*dto.RespondReplacementResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}
	if s.tokens == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "offer tokens are not configured")
	}
	claims, err := s.tokens.Parse(req.Token)
	if err != nil {
		return nil, err
	}

	if req.Action == "ACCEPT" {
		task, err := s.Accept(ctx, claims.TaskID, dto.AcceptReplacementRequest{CandidateID: claims.Subject})
		if err != nil {
			return nil, err
		}
		return &dto.RespondReplacementResponse{TaskID: task.ID, Outcome: dto.OutcomeAccepted, Task: task}, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = reasonTokenDecline
	}
	resp, err := s.Decline(ctx, claims.TaskID, dto.DeclineReplacementRequest{CandidateID: claims.Subject, Reason: reason})
	if err != nil {
		return nil, err
	}
	return &dto.RespondReplacementResponse{TaskID: resp.TaskID, Outcome: resp.Outcome, Task: resp.NextTask}, nil
}

// StartSweeper boots a goroutine that declines offers left unanswered past the offer TTL.
func (s *ReplacementService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExpireStale(ctx); err != nil {
					s.logger.Sugar().Warnw("offer sweep failed", "error", err)
				}
			}
		}
	}()
}

// ExpireStale auto-declines pending offers older than the offer TTL and cascades each one.
func (s *ReplacementService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.OfferTTL)
	stale, err := s.tasks.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to list expired offers")
	}

	expired := 0
	for i := range stale {
		task := stale[i]
		unlock, err := s.locker.Lock(ctx, lock.ClassKey(task.ClassID))
		if err != nil {
			return expired, err
		}
		_, err = s.declineAndCascade(ctx, &task, reasonOfferExpired)
		unlock()
		if err != nil {
			if errors.Is(err, appErrors.ErrAlreadyResolved) {
				continue
			}
			s.logger.Sugar().Warnw("expire offer failed", "task_id", task.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *ReplacementService) loadPending(ctx context.Context, taskID, candidateID string) (*models.ReplacementTask, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "replacement task not found")
		}
		return nil, appErrors.Persistence(err, "failed to load replacement task")
	}
	if task.State != models.ReplacementPending {
		return nil, appErrors.Clone(appErrors.ErrAlreadyResolved, "replacement task is already "+string(task.State))
	}
	if task.CandidateTeacherID == nil || *task.CandidateTeacherID != candidateID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "replacement task is offered to another teacher")
	}
	return task, nil
}

func (s *ReplacementService) commitAcceptance(ctx context.Context, task *models.ReplacementTask) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Persistence(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	booked, err := s.tasks.ListAcceptedByCandidate(ctx, tx, *task.CandidateTeacherID, task.Date)
	if err != nil {
		return appErrors.Persistence(err, "failed to load substitute bookings")
	}
	if overlapsAny(*task, booked) {
		err = errSubstituteBooked
		return err
	}

	if err = s.tasks.Transition(ctx, tx, task.ID, models.ReplacementPending, models.ReplacementAccepted, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrAlreadyResolved, "replacement task is no longer pending")
		}
		return appErrors.Persistence(err, "failed to accept replacement task")
	}

	occ := occurrenceFromTask(*task)
	covered := []models.ScheduleEntry{occ.Entry}
	if occ.Paired != nil {
		covered = append(covered, *occ.Paired)
	}
	for _, entry := range covered {
		override := &models.ScheduleOverride{
			ScheduleEntryID:     entry.ID,
			ClassID:             task.ClassID,
			SlotNumber:          entry.SlotNumber,
			Date:                task.Date,
			SubstituteTeacherID: *task.CandidateTeacherID,
			TaskID:              task.ID,
		}
		if err = s.overrides.Create(ctx, tx, override); err != nil {
			if constraint, ok := violatedConstraint(err); ok {
				if constraint == substituteSlotConstraint {
					err = errSubstituteBooked
					return err
				}
				return appErrors.Wrap(err, appErrors.ErrAlreadyResolved.Code, appErrors.ErrAlreadyResolved.Status, "occurrence already has a substitute")
			}
			return appErrors.Persistence(err, "failed to record substitution")
		}
	}

	if err = tx.Commit(); err != nil {
		return appErrors.Persistence(err, "failed to commit acceptance")
	}
	return nil
}

// passOnBookedOffer declines an offer whose candidate took the same slot elsewhere and moves the lesson on.
func (s *ReplacementService) passOnBookedOffer(ctx context.Context, task *models.ReplacementTask) error {
	s.logger.Warn("substitute already booked",
		zap.String("task_id", task.ID),
		zap.String("candidate_id", *task.CandidateTeacherID),
		zap.String("date", task.Date.Format("2006-01-02")),
	)
	if _, err := s.declineAndCascade(ctx, task, reasonAlreadyBooked); err != nil {
		return err
	}
	return appErrors.Clone(appErrors.ErrConflict, "teacher already substitutes in that slot; the lesson was offered to the next candidate")
}

func (s *ReplacementService) declineAndCascade(ctx context.Context, task *models.ReplacementTask, reason string) (*dto.DeclineReplacementResponse, error) {
	if err := s.tasks.Transition(ctx, nil, task.ID, models.ReplacementPending, models.ReplacementDeclined, &reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyResolved, "replacement task is no longer pending")
		}
		return nil, appErrors.Persistence(err, "failed to decline replacement task")
	}
	s.metrics.RecordResolution(string(models.ReplacementDeclined))

	occ := occurrenceFromTask(*task)
	history, err := s.tasks.ListByOccurrence(ctx, occ.Entry.ID, occ.Date)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load replacement history")
	}
	item := resolutionItem{occ: occ, excluded: make(map[string]bool)}
	for _, previous := range history {
		if previous.CandidateTeacherID != nil {
			item.excluded[*previous.CandidateTeacherID] = true
			item.attempts++
		}
	}

	res, err := s.resolve(ctx, item)
	if err != nil {
		return nil, err
	}
	resp := &dto.DeclineReplacementResponse{TaskID: task.ID, NextTask: res.task}
	if res.escalated {
		resp.Outcome = dto.OutcomeEscalated
	} else {
		resp.Outcome = dto.OutcomeNextCandidateNotified
	}
	return resp, nil
}

func (s *ReplacementService) resolveOccurrence(ctx context.Context, occ occurrence) (resolution, error) {
	unlock, err := s.locker.Lock(ctx, lock.ClassKey(occ.Entry.ClassID))
	if err != nil {
		return resolution{}, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "class timetable is busy")
	}
	defer unlock()
	return s.resolve(ctx, resolutionItem{occ: occ, excluded: make(map[string]bool)})
}

// --- Resolution queue ---

type resolution struct {
	task      *models.ReplacementTask
	escalated bool
}

type resolutionItem struct {
	occ      occurrence
	excluded map[string]bool
	attempts int
}

// resolutionQueue carries occurrences whose offer could not stand, so cascades never recurse.
type resolutionQueue struct {
	items []resolutionItem
}

func (q *resolutionQueue) push(item resolutionItem) {
	q.items = append(q.items, item)
}

func (q *resolutionQueue) pop() (resolutionItem, bool) {
	if len(q.items) == 0 {
		return resolutionItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// resolve offers the occurrence to the best free candidate, escalating once nobody is left.
func (s *ReplacementService) resolve(ctx context.Context, start resolutionItem) (resolution, error) {
	queue := &resolutionQueue{}
	queue.push(start)

	for {
		item, ok := queue.pop()
		if !ok {
			return s.escalate(ctx, start.occ)
		}
		if item.attempts >= s.cfg.MaxAttempts {
			return s.escalate(ctx, item.occ)
		}

		pool, err := s.buildPool(ctx, item)
		if err != nil {
			return resolution{}, err
		}
		cand, found := selectCandidate(pool)
		if !found {
			return s.escalate(ctx, item.occ)
		}

		task := newReplacementTask(item.occ, models.ReplacementPending)
		task.CandidateTeacherID = &cand.TeacherID
		task.Tier = cand.Tier
		task.Priority = cand.Priority
		if err := s.tasks.Create(ctx, nil, task); err != nil {
			return resolution{}, appErrors.Persistence(err, "failed to create replacement task")
		}

		if err := s.deliverOffer(ctx, task, item.occ); err != nil {
			s.metrics.RecordOffer(cand.Tier, false)
			s.logger.Warn("offer delivery failed",
				zap.String("task_id", task.ID),
				zap.String("candidate_id", cand.TeacherID),
				zap.Error(err),
			)
			reason := reasonDeliveryFailed
			if terr := s.tasks.Transition(ctx, nil, task.ID, models.ReplacementPending, models.ReplacementDeclined, &reason); terr != nil && !errors.Is(terr, sql.ErrNoRows) {
				return resolution{}, appErrors.Persistence(terr, "failed to decline undelivered offer")
			}
			item.excluded[cand.TeacherID] = true
			item.attempts++
			queue.push(item)
			continue
		}

		s.metrics.RecordOffer(cand.Tier, true)
		return resolution{task: task}, nil
	}
}

func (s *ReplacementService) buildPool(ctx context.Context, item resolutionItem) (*candidatePool, error) {
	occ := item.occ
	day, err := s.entries.ListActiveByDay(ctx, occ.Entry.DayOfWeek)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load weekday timetable")
	}
	committed, err := s.tasks.ListCommittedOn(ctx, occ.Date)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load committed substitutions")
	}
	leave, err := s.absences.ListApprovedOn(ctx, occ.Date)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load approved leave")
	}
	assignments, err := s.assignments.ListBySubjectClass(ctx, occ.Entry.SubjectID, occ.Entry.ClassID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load subject assignments")
	}
	teachers, err := s.directory.ListActiveTeachers(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load teachers")
	}

	quota := make(map[string]int)
	for _, a := range assignments {
		quota[a.TeacherID] += a.RemainingQuota
	}
	return &candidatePool{
		occ:      occ,
		day:      day,
		teachers: teachers,
		quota:    quota,
		busy:     busyTeachers(occ, day, committed, leave, s.cfg.PeriodsPerDay),
		excluded: item.excluded,
	}, nil
}

func (s *ReplacementService) deliverOffer(ctx context.Context, task *models.ReplacementTask, occ occurrence) error {
	if s.notifier == nil {
		return appErrors.Clone(appErrors.ErrInternal, "notifier missing")
	}
	expiresAt := task.CreatedAt.Add(s.cfg.OfferTTL)
	offer := models.CandidateOffer{
		TaskID:            task.ID,
		OriginalTeacherID: task.OriginalTeacherID,
		ClassID:           task.ClassID,
		SubjectID:         task.SubjectID,
		DayOfWeek:         task.DayOfWeek,
		SlotNumber:        task.SlotNumber,
		DoublePeriod:      occ.Paired != nil,
		Date:              occ.dateLabel(),
		Priority:          task.Priority,
		ExpiresAt:         expiresAt,
	}
	if s.tokens != nil {
		token, err := s.tokens.Issue(task.ID, *task.CandidateTeacherID, expiresAt)
		if err != nil {
			return err
		}
		offer.Token = token
	}
	return s.notifier.Notify(ctx, *task.CandidateTeacherID, EventReplacementOffer, offer)
}

type escalationNotice struct {
	TaskID            string `json:"task_id"`
	AbsenceID         string `json:"absence_id"`
	OriginalTeacherID string `json:"original_teacher_id"`
	ClassID           string `json:"class_id"`
	SubjectID         string `json:"subject_id"`
	Date              string `json:"date"`
	SlotNumber        int    `json:"slot_number"`
	DoublePeriod      bool   `json:"double_period"`
}

// escalate records the occurrence as unresolved and tells the administrators, once per occurrence.
func (s *ReplacementService) escalate(ctx context.Context, occ occurrence) (resolution, error) {
	history, err := s.tasks.ListByOccurrence(ctx, occ.Entry.ID, occ.Date)
	if err != nil {
		return resolution{}, appErrors.Persistence(err, "failed to load replacement history")
	}
	for i := range history {
		if history[i].State == models.ReplacementEscalated {
			return resolution{task: &history[i], escalated: true}, nil
		}
	}

	task := newReplacementTask(occ, models.ReplacementEscalated)
	reason := appErrors.ErrNoCandidateFound.Code
	task.DeclineReason = &reason
	if err := s.tasks.Create(ctx, nil, task); err != nil {
		return resolution{}, appErrors.Persistence(err, "failed to record escalation")
	}
	s.metrics.RecordResolution(string(models.ReplacementEscalated))

	notice := escalationNotice{
		TaskID:            task.ID,
		AbsenceID:         task.AbsenceID,
		OriginalTeacherID: task.OriginalTeacherID,
		ClassID:           task.ClassID,
		SubjectID:         task.SubjectID,
		Date:              occ.dateLabel(),
		SlotNumber:        task.SlotNumber,
		DoublePeriod:      occ.Paired != nil,
	}
	if s.directory != nil {
		notifyRole(ctx, s.directory, s.notifier, s.cfg.AdminRole, EventReplacementEscalated, notice, s.logger)
	}

	s.logger.Info("replacement escalated",
		zap.String("task_id", task.ID),
		zap.String("class_id", task.ClassID),
		zap.String("date", occ.dateLabel()),
	)
	return resolution{task: task, escalated: true}, nil
}

func newReplacementTask(occ occurrence, state models.ReplacementState) *models.ReplacementTask {
	task := &models.ReplacementTask{
		AbsenceID:         occ.AbsenceID,
		OriginalTeacherID: occ.OriginalTeacherID,
		ClassID:           occ.Entry.ClassID,
		SubjectID:         occ.Entry.SubjectID,
		ScheduleEntryID:   occ.Entry.ID,
		DayOfWeek:         occ.Entry.DayOfWeek,
		SlotNumber:        occ.Entry.SlotNumber,
		Date:              occ.Date,
		State:             state,
	}
	if occ.Paired != nil {
		paired := occ.Paired.ID
		task.PairedEntryID = &paired
	}
	return task
}

// occurrenceFromTask rebuilds the occurrence a task was offered for. A paired slot follows the first.
func occurrenceFromTask(task models.ReplacementTask) occurrence {
	entry := models.ScheduleEntry{
		ID:             task.ScheduleEntryID,
		ClassID:        task.ClassID,
		SubjectID:      task.SubjectID,
		TeacherID:      task.OriginalTeacherID,
		DayOfWeek:      task.DayOfWeek,
		SlotNumber:     task.SlotNumber,
		IsDoublePeriod: task.PairedEntryID != nil,
	}
	occ := occurrence{
		AbsenceID:         task.AbsenceID,
		OriginalTeacherID: task.OriginalTeacherID,
		Entry:             entry,
		Date:              dateOnly(task.Date),
	}
	if task.PairedEntryID != nil {
		paired := entry
		paired.ID = *task.PairedEntryID
		paired.SlotNumber = entry.SlotNumber + 1
		occ.Paired = &paired
	}
	return occ
}

// overlapsAny reports whether another accepted task already holds one of the task slots.
func overlapsAny(task models.ReplacementTask, accepted []models.ReplacementTask) bool {
	slots := make(map[int]bool)
	for _, slot := range occurrenceFromTask(task).slots() {
		slots[slot] = true
	}
	for _, other := range accepted {
		if other.ID == task.ID {
			continue
		}
		for _, slot := range occurrenceFromTask(other).slots() {
			if slots[slot] {
				return true
			}
		}
	}
	return false
}

func violatedConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

func validateAbsence(absence *models.AbsenceRequest) error {
	if absence.Status != models.AbsenceStatusApproved {
		return appErrors.Clone(appErrors.ErrValidation, "absence is not approved")
	}
	if absence.EndDate.Before(absence.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "absence ends before it starts")
	}
	switch absence.Scope {
	case models.AbsenceScopeFull, models.AbsenceScopeFirstHalf, models.AbsenceScopeSecondHalf:
		return nil
	}
	return appErrors.Clone(appErrors.ErrValidation, "unknown absence scope")
}

// AbsenceJobType tags queued absence processing jobs.
const AbsenceJobType = "absence.process"

// HandleAbsenceJob processes a queued absence; the payload is the absence id.
func (s *ReplacementService) HandleAbsenceJob(ctx context.Context, job jobs.Job) error {
	absenceID, ok := job.Payload.(string)
	if !ok || absenceID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "absence job without absence id")
	}
	_, err := s.ProcessApprovedAbsence(ctx, absenceID)
	return err
}

// RetryableJobError retries only failures that are not the caller's fault.
func RetryableJobError(err error) bool {
	return appErrors.FromError(err).Status >= http.StatusInternalServerError
}
