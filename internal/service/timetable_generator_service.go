package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/lock"
)

const conflictCachePattern = "timetable:conflicts:*"

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type termReader interface {
	FindTerm(ctx context.Context, id string) (*models.Term, error)
}

type classAssignmentReader interface {
	ListByClassTerm(ctx context.Context, classID, termID string) ([]models.Assignment, error)
}

type slotCatalog interface {
	List(ctx context.Context) ([]models.SlotDefinition, error)
}

type timetableWriter interface {
	ListByTeachers(ctx context.Context, termID string, teacherIDs []string) ([]models.ScheduleEntry, error)
	DeleteByClassTerm(ctx context.Context, exec sqlx.ExtContext, classID, termID string) error
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
}

type openSubstitutionCounter interface {
	CountOpenForClass(ctx context.Context, classID string, from time.Time) (int, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// TimetableGeneratorConfig governs the generator week shape.
type TimetableGeneratorConfig struct {
	DaysPerWeek int
}

// TimetableGeneratorService builds the recurring weekly timetable of a class.
type TimetableGeneratorService struct {
	terms       termReader
	assignments classAssignmentReader
	slots       slotCatalog
	entries     timetableWriter
	open        openSubstitutionCounter
	tx          txProvider
	locker      lock.Locker
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	days        int
	now         func() time.Time
}

// NewTimetableGeneratorService wires generator dependencies.
func NewTimetableGeneratorService(
	terms termReader,
	assignments classAssignmentReader,
	slots slotCatalog,
	entries timetableWriter,
	open openSubstitutionCounter,
	tx txProvider,
	locker lock.Locker,
	cache cacheInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableGeneratorConfig,
) *TimetableGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if cfg.DaysPerWeek <= 0 || cfg.DaysPerWeek > 5 {
		cfg.DaysPerWeek = 5
	}
	return &TimetableGeneratorService{
		terms:       terms,
		assignments: assignments,
		slots:       slots,
		entries:     entries,
		open:        open,
		tx:          tx,
		locker:      locker,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		days:        cfg.DaysPerWeek,
		now:         time.Now,
	}
}

// Generate replaces the weekly entries of a class for a term with a freshly generated set.
func (s *TimetableGeneratorService) Generate(ctx context.Context, classID string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	if _, err := s.terms.FindTerm(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "term not found")
		}
		return nil, appErrors.Persistence(err, "failed to load term")
	}

	unlock, err := s.locker.Lock(ctx, lock.ClassKey(classID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "class timetable is busy")
	}
	defer unlock()

	// Offers and substitutions point at the current entries, so they must be settled first.
	if s.open != nil {
		open, err := s.open.CountOpenForClass(ctx, classID, dateOnly(s.now()))
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to check open substitutions")
		}
		if open > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("class has %d open or upcoming substitutions; resolve them before regenerating", open))
		}
	}

	catalog, err := s.slots.List(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load slot catalog")
	}
	periods := academicSlots(catalog)
	if len(periods) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot catalog has no academic periods")
	}

	assignments, err := s.assignments.ListByClassTerm(ctx, classID, req.TermID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load assignments")
	}
	assignments = withQuota(assignments)

	weekly := s.days * len(periods)
	total := 0
	for _, a := range assignments {
		total += a.RemainingQuota
	}
	if total > weekly {
		s.metrics.RecordGeneration("capacity_exceeded", 0, 0)
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("remaining quota %d exceeds %d weekly periods", total, weekly))
	}

	grid, err := s.buildAvailability(ctx, classID, req.TermID, assignments)
	if err != nil {
		return nil, err
	}

	plan := newTimetablePlan(classID, req.TermID, s.days, periods, grid)
	sortByQuota(assignments)
	for _, a := range assignments {
		plan.place(a)
	}

	if err := s.persist(ctx, classID, req.TermID, plan.entries); err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, conflictCachePattern)
	}
	s.metrics.RecordGeneration("generated", len(plan.entries), plan.doubles)
	s.logger.Info("timetable generated",
		zap.String("class_id", classID),
		zap.String("term_id", req.TermID),
		zap.Int("placed", len(plan.entries)),
		zap.Int("warnings", len(plan.warnings)),
	)

	return &dto.GenerateTimetableResponse{
		ClassID:       classID,
		TermID:        req.TermID,
		PlacedCount:   len(plan.entries),
		DoublePeriods: plan.doubles,
		Warnings:      plan.warnings,
	}, nil
}

func (s *TimetableGeneratorService) buildAvailability(ctx context.Context, classID, termID string, assignments []models.Assignment) (*availabilityGrid, error) {
	teacherIDs := make([]string, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.TeacherID]; ok {
			continue
		}
		seen[a.TeacherID] = struct{}{}
		teacherIDs = append(teacherIDs, a.TeacherID)
	}

	bookings, err := s.entries.ListByTeachers(ctx, termID, teacherIDs)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load teacher bookings")
	}

	grid := newAvailabilityGrid()
	for _, entry := range bookings {
		if entry.ClassID == classID {
			continue
		}
		grid.Block(entry.TeacherID, entry.DayOfWeek, entry.SlotNumber)
	}
	return grid, nil
}

func (s *TimetableGeneratorService) persist(ctx context.Context, classID, termID string, entries []models.ScheduleEntry) (err error) {
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

	if err = s.entries.DeleteByClassTerm(ctx, tx, classID, termID); err != nil {
		return appErrors.Persistence(err, "failed to clear previous timetable")
	}
	if err = s.entries.InsertBatch(ctx, tx, entries); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "timetable collides with a concurrent booking")
		}
		return appErrors.Persistence(err, "failed to store timetable")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Persistence(err, "failed to commit timetable")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func withQuota(assignments []models.Assignment) []models.Assignment {
	result := make([]models.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if a.RemainingQuota > 0 {
			result = append(result, a)
		}
	}
	return result
}

func sortByQuota(assignments []models.Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		if assignments[i].RemainingQuota != assignments[j].RemainingQuota {
			return assignments[i].RemainingQuota > assignments[j].RemainingQuota
		}
		if assignments[i].SubjectID != assignments[j].SubjectID {
			return assignments[i].SubjectID < assignments[j].SubjectID
		}
		return assignments[i].TeacherID < assignments[j].TeacherID
	})
}

// academicSlots returns the period rows of the catalog in bell order.
func academicSlots(catalog []models.SlotDefinition) []models.SlotDefinition {
	sorted := make([]models.SlotDefinition, len(catalog))
	copy(sorted, catalog)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	periods := make([]models.SlotDefinition, 0, len(sorted))
	for _, slot := range sorted {
		if slot.IsAcademic() {
			periods = append(periods, slot)
		}
	}
	return periods
}

// doublePairs lists period pairs taught back to back with no break between them.
func doublePairs(periods []models.SlotDefinition) [][2]int {
	var pairs [][2]int
	for i := 0; i+1 < len(periods); i++ {
		if periods[i+1].Sequence == periods[i].Sequence+1 {
			pairs = append(pairs, [2]int{periods[i].SlotNumber, periods[i+1].SlotNumber})
		}
	}
	return pairs
}

// --- Generation plan ---

type timetablePlan struct {
	classID  string
	termID   string
	days     int
	periods  []models.SlotDefinition
	pairs    [][2]int
	grid     *availabilityGrid
	class    map[slotKey]bool
	entries  []models.ScheduleEntry
	warnings []dto.GenerationWarning
	doubles  int
}

type slotKey struct {
	Day  int
	Slot int
}

func newTimetablePlan(classID, termID string, days int, periods []models.SlotDefinition, grid *availabilityGrid) *timetablePlan {
	return &timetablePlan{
		classID: classID,
		termID:  termID,
		days:    days,
		periods: periods,
		pairs:   doublePairs(periods),
		grid:    grid,
		class:   make(map[slotKey]bool),
	}
}

func (p *timetablePlan) place(a models.Assignment) {
	remaining := a.RemainingQuota
	daily := (a.RemainingQuota + p.days - 1) / p.days

	for day := 1; day <= p.days && remaining > 0; day++ {
		placedToday := 0
		if a.IsLab && remaining >= 2 {
			if p.placeDouble(a, day) {
				remaining -= 2
				placedToday += 2
			}
		}
		for _, period := range p.periods {
			if placedToday >= daily || remaining == 0 {
				break
			}
			if !p.free(a.TeacherID, day, period.SlotNumber) {
				continue
			}
			p.add(a, day, period.SlotNumber, false)
			remaining--
			placedToday++
		}
	}

	if remaining > 0 {
		p.warnings = append(p.warnings, dto.GenerationWarning{
			AssignmentID: a.ID,
			SubjectID:    a.SubjectID,
			TeacherID:    a.TeacherID,
			Requested:    a.RemainingQuota,
			Placed:       a.RemainingQuota - remaining,
			Message:      fmt.Sprintf("%d of %d periods could not be placed", remaining, a.RemainingQuota),
		})
	}
}

func (p *timetablePlan) placeDouble(a models.Assignment, day int) bool {
	for _, pair := range p.pairs {
		if p.free(a.TeacherID, day, pair[0]) && p.free(a.TeacherID, day, pair[1]) {
			p.add(a, day, pair[0], true)
			p.add(a, day, pair[1], true)
			p.doubles++
			return true
		}
	}
	return false
}

func (p *timetablePlan) free(teacherID string, day, slot int) bool {
	return !p.class[slotKey{Day: day, Slot: slot}] && p.grid.Free(teacherID, day, slot)
}

func (p *timetablePlan) add(a models.Assignment, day, slot int, double bool) {
	p.class[slotKey{Day: day, Slot: slot}] = true
	p.grid.Reserve(a.TeacherID, day, slot)
	p.entries = append(p.entries, models.ScheduleEntry{
		TermID:         p.termID,
		ClassID:        p.classID,
		SubjectID:      a.SubjectID,
		TeacherID:      a.TeacherID,
		DayOfWeek:      day,
		SlotNumber:     slot,
		IsDoublePeriod: double,
	})
}

// --- Teacher availability ---

type teacherSlot struct {
	TeacherID string
	Day       int
	Slot      int
}

// availabilityGrid is owned by one generation run and records teacher bookings per day and slot.
type availabilityGrid struct {
	busy map[teacherSlot]bool
}

func newAvailabilityGrid() *availabilityGrid {
	return &availabilityGrid{busy: make(map[teacherSlot]bool)}
}

func (g *availabilityGrid) Block(teacherID string, day, slot int) {
	g.busy[teacherSlot{TeacherID: teacherID, Day: day, Slot: slot}] = true
}

func (g *availabilityGrid) Free(teacherID string, day, slot int) bool {
	return !g.busy[teacherSlot{TeacherID: teacherID, Day: day, Slot: slot}]
}

func (g *availabilityGrid) Reserve(teacherID string, day, slot int) {
	g.busy[teacherSlot{TeacherID: teacherID, Day: day, Slot: slot}] = true
}
