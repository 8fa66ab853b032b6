package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

type timetableReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.ScheduleEntry, error)
	ListByTeachers(ctx context.Context, termID string, teacherIDs []string) ([]models.ScheduleEntry, error)
}

type conflictCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// TimetableValidatorService reports teachers booked in two classes at once.
type TimetableValidatorService struct {
	entries timetableReader
	cache   conflictCache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewTimetableValidatorService constructs the validator. cache may be nil.
func NewTimetableValidatorService(entries timetableReader, cache conflictCache, ttl time.Duration, logger *zap.Logger) *TimetableValidatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableValidatorService{entries: entries, cache: cache, ttl: ttl, logger: logger}
}

func conflictCacheKey(classID string) string {
	return "timetable:conflicts:" + classID
}

// Validate scans the class timetable against every other class sharing its teachers.
func (s *TimetableValidatorService) Validate(ctx context.Context, classID string) ([]models.TimetableConflict, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}

	key := conflictCacheKey(classID)
	if s.cache != nil {
		var cached []models.TimetableConflict
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	entries, err := s.entries.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load class timetable")
	}

	teachersByTerm := make(map[string][]string)
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.TeacherID == "" {
			continue
		}
		marker := entry.TermID + "|" + entry.TeacherID
		if seen[marker] {
			continue
		}
		seen[marker] = true
		teachersByTerm[entry.TermID] = append(teachersByTerm[entry.TermID], entry.TeacherID)
	}

	others := make(map[teacherSlot]map[string]bool)
	for termID, teacherIDs := range teachersByTerm {
		bookings, err := s.entries.ListByTeachers(ctx, termID, teacherIDs)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to load teacher bookings")
		}
		for _, booking := range bookings {
			if booking.ClassID == classID {
				continue
			}
			slot := teacherSlot{TeacherID: booking.TeacherID, Day: booking.DayOfWeek, Slot: booking.SlotNumber}
			if others[slot] == nil {
				others[slot] = make(map[string]bool)
			}
			others[slot][booking.ClassID] = true
		}
	}

	conflicts := findConflicts(classID, entries, others)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, conflicts, s.ttl); err != nil {
			s.logger.Debug("conflict cache write skipped", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return conflicts, nil
}

func findConflicts(classID string, entries []models.ScheduleEntry, others map[teacherSlot]map[string]bool) []models.TimetableConflict {
	conflicts := make([]models.TimetableConflict, 0)
	reported := make(map[teacherSlot]bool)
	for _, entry := range entries {
		if entry.TeacherID == "" {
			continue
		}
		key := teacherSlot{TeacherID: entry.TeacherID, Day: entry.DayOfWeek, Slot: entry.SlotNumber}
		classes, clash := others[key]
		if !clash || reported[key] {
			continue
		}
		reported[key] = true

		ids := []string{classID}
		for other := range classes {
			ids = append(ids, other)
		}
		sort.Strings(ids[1:])
		conflicts = append(conflicts, models.TimetableConflict{
			TeacherID:  entry.TeacherID,
			DayOfWeek:  entry.DayOfWeek,
			SlotNumber: entry.SlotNumber,
			ClassIDs:   ids,
		})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].DayOfWeek != conflicts[j].DayOfWeek {
			return conflicts[i].DayOfWeek < conflicts[j].DayOfWeek
		}
		if conflicts[i].SlotNumber != conflicts[j].SlotNumber {
			return conflicts[i].SlotNumber < conflicts[j].SlotNumber
		}
		return conflicts[i].TeacherID < conflicts[j].TeacherID
	})
	return conflicts
}
