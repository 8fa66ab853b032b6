package models

import "time"

// AbsenceScope narrows an absence to part of the school day.
type AbsenceScope string

const (
	AbsenceScopeFull       AbsenceScope = "FULL"
	AbsenceScopeFirstHalf  AbsenceScope = "FIRST_HALF"
	AbsenceScopeSecondHalf AbsenceScope = "SECOND_HALF"
)

// AbsenceStatus tracks approval of a leave request.
type AbsenceStatus string

const (
	AbsenceStatusPending  AbsenceStatus = "PENDING"
	AbsenceStatusApproved AbsenceStatus = "APPROVED"
	AbsenceStatusRejected AbsenceStatus = "REJECTED"
)

// AbsenceRequest is a teacher leave over an inclusive date range.
type AbsenceRequest struct {
	ID          string        `db:"id" json:"id"`
	TeacherID   string        `db:"teacher_id" json:"teacher_id"`
	StartDate   time.Time     `db:"start_date" json:"start_date"`
	EndDate     time.Time     `db:"end_date" json:"end_date"`
	Scope       AbsenceScope  `db:"scope" json:"scope"`
	Status      AbsenceStatus `db:"status" json:"status"`
	ProcessedAt *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the absence removes the teacher from the given slot on date.
func (a AbsenceRequest) Covers(date time.Time, slotNumber, periodsPerDay int) bool {
	day := truncateDay(date)
	if day.Before(truncateDay(a.StartDate)) || day.After(truncateDay(a.EndDate)) {
		return false
	}
	half := periodsPerDay / 2
	switch a.Scope {
	case AbsenceScopeFirstHalf:
		return slotNumber >= 1 && slotNumber <= half
	case AbsenceScopeSecondHalf:
		return slotNumber > half && slotNumber <= periodsPerDay
	default:
		return true
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
