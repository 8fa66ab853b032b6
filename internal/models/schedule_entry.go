package models

import "time"

// ScheduleEntry is one recurring weekly period of a class. DayOfWeek follows time.Weekday (1 = Monday).
type ScheduleEntry struct {
	ID             string    `db:"id" json:"id"`
	TermID         string    `db:"term_id" json:"term_id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek      int       `db:"day_of_week" json:"day_of_week"`
	SlotNumber     int       `db:"slot_number" json:"slot_number"`
	IsDoublePeriod bool      `db:"is_double_period" json:"is_double_period"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleOverride substitutes the teacher of one entry on a single date.
type ScheduleOverride struct {
	ID                  string    `db:"id" json:"id"`
	ScheduleEntryID     string    `db:"schedule_entry_id" json:"schedule_entry_id"`
	ClassID             string    `db:"class_id" json:"class_id"`
	SlotNumber          int       `db:"slot_number" json:"slot_number"`
	Date                time.Time `db:"date" json:"date"`
	SubstituteTeacherID string    `db:"substitute_teacher_id" json:"substitute_teacher_id"`
	TaskID              string    `db:"task_id" json:"task_id"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// TimetableConflict lists the classes that book the same teacher in one slot.
type TimetableConflict struct {
	TeacherID  string   `json:"teacher_id"`
	DayOfWeek  int      `json:"day_of_week"`
	SlotNumber int      `json:"slot_number"`
	ClassIDs   []string `json:"classes"`
}
