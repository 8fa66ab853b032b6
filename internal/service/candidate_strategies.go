package service

import (
	"sort"
	"time"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
)

// occurrence is one dated lesson of an absent teacher. A double period travels as one occurrence.
type occurrence struct {
	AbsenceID         string
	OriginalTeacherID string
	Entry             models.ScheduleEntry
	Paired            *models.ScheduleEntry
	Date              time.Time
}

func (o occurrence) slots() []int {
	if o.Paired != nil {
		return []int{o.Entry.SlotNumber, o.Paired.SlotNumber}
	}
	return []int{o.Entry.SlotNumber}
}

func (o occurrence) dateLabel() string {
	return o.Date.Format("2006-01-02")
}

// candidatePool holds everything a strategy needs to judge one occurrence.
type candidatePool struct {
	occ      occurrence
	day      []models.ScheduleEntry
	teachers []models.Teacher
	quota    map[string]int
	busy     map[string]bool
	excluded map[string]bool
}

type candidate struct {
	TeacherID string
	Tier      int
	Priority  int
}

type candidateStrategy struct {
	tier int
	name string
	pool func(p *candidatePool) []string
}

// candidateStrategies is evaluated in order; the first tier with an eligible teacher wins.
var candidateStrategies = []candidateStrategy{
	{tier: 1, name: "same_class_same_day", pool: sameClassSameDay},
	{tier: 2, name: "subject_assignment", pool: subjectAssignees},
	{tier: 3, name: "any_free_teacher", pool: anyActiveTeacher},
}

func sameClassSameDay(p *candidatePool) []string {
	ids := make([]string, 0)
	for _, entry := range p.day {
		if entry.ClassID == p.occ.Entry.ClassID {
			ids = append(ids, entry.TeacherID)
		}
	}
	return ids
}

func subjectAssignees(p *candidatePool) []string {
	ids := make([]string, 0, len(p.quota))
	for id := range p.quota {
		ids = append(ids, id)
	}
	return ids
}

func anyActiveTeacher(p *candidatePool) []string {
	ids := make([]string, 0, len(p.teachers))
	for _, teacher := range p.teachers {
		ids = append(ids, teacher.ID)
	}
	return ids
}

func (p *candidatePool) eligible(teacherID string) bool {
	if teacherID == "" || teacherID == p.occ.OriginalTeacherID {
		return false
	}
	return !p.excluded[teacherID] && !p.busy[teacherID]
}

// selectCandidate walks the strategies and ranks each tier by remaining quota, then teacher id.
func selectCandidate(p *candidatePool) (candidate, bool) {
	for _, strategy := range candidateStrategies {
		seen := make(map[string]bool)
		ranked := make([]candidate, 0)
		for _, id := range strategy.pool(p) {
			if seen[id] || !p.eligible(id) {
				continue
			}
			seen[id] = true
			ranked = append(ranked, candidate{TeacherID: id, Tier: strategy.tier, Priority: p.quota[id]})
		}
		if len(ranked) == 0 {
			continue
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Priority != ranked[j].Priority {
				return ranked[i].Priority > ranked[j].Priority
			}
			return ranked[i].TeacherID < ranked[j].TeacherID
		})
		return ranked[0], true
	}
	return candidate{}, false
}

// busyTeachers marks teachers who cannot take any of the occurrence slots on its date.
func busyTeachers(occ occurrence, day []models.ScheduleEntry, committed []models.ReplacementTask, leave []models.AbsenceRequest, periodsPerDay int) map[string]bool {
	slots := make(map[int]bool)
	for _, slot := range occ.slots() {
		slots[slot] = true
	}

	busy := make(map[string]bool)
	for _, entry := range day {
		if slots[entry.SlotNumber] {
			busy[entry.TeacherID] = true
		}
	}
	for _, task := range committed {
		if task.CandidateTeacherID == nil {
			continue
		}
		for _, slot := range occurrenceFromTask(task).slots() {
			if slots[slot] {
				busy[*task.CandidateTeacherID] = true
			}
		}
	}
	for _, absence := range leave {
		for slot := range slots {
			if absence.Covers(occ.Date, slot, periodsPerDay) {
				busy[absence.TeacherID] = true
			}
		}
	}
	return busy
}

// expandOccurrences lists the dated lessons an absence removes, Monday to Friday only.
func expandOccurrences(absence models.AbsenceRequest, entries []models.ScheduleEntry, periodsPerDay int) []occurrence {
	byDay := make(map[int][]models.ScheduleEntry)
	for _, entry := range entries {
		byDay[entry.DayOfWeek] = append(byDay[entry.DayOfWeek], entry)
	}
	for day := range byDay {
		sort.Slice(byDay[day], func(i, j int) bool { return byDay[day][i].SlotNumber < byDay[day][j].SlotNumber })
	}

	start := dateOnly(absence.StartDate)
	end := dateOnly(absence.EndDate)
	result := make([]occurrence, 0)
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if !isSchoolDay(date) {
			continue
		}
		for _, occ := range groupDoubles(byDay[int(date.Weekday())]) {
			affected := false
			for _, slot := range occ.slots() {
				if absence.Covers(date, slot, periodsPerDay) {
					affected = true
				}
			}
			if !affected {
				continue
			}
			occ.AbsenceID = absence.ID
			occ.OriginalTeacherID = absence.TeacherID
			occ.Date = date
			result = append(result, occ)
		}
	}
	return result
}

// groupDoubles pairs a double-period row with the row of the same class and subject in the next slot.
func groupDoubles(day []models.ScheduleEntry) []occurrence {
	result := make([]occurrence, 0, len(day))
	used := make(map[int]bool)
	for i, entry := range day {
		if used[i] {
			continue
		}
		occ := occurrence{Entry: entry}
		if entry.IsDoublePeriod {
			for j := i + 1; j < len(day); j++ {
				next := day[j]
				if used[j] || !next.IsDoublePeriod || next.ClassID != entry.ClassID || next.SubjectID != entry.SubjectID {
					continue
				}
				if next.SlotNumber != entry.SlotNumber+1 {
					break
				}
				paired := next
				occ.Paired = &paired
				used[j] = true
				break
			}
		}
		used[i] = true
		result = append(result, occ)
	}
	return result
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
