package models

import "time"

// SubjectGroupReligion marks subjects that share one religion quota slot.
const SubjectGroupReligion = "RELIGION"

// Assignment owes RemainingQuota periods of a subject to a class for one term.
type Assignment struct {
	ID               string    `db:"id" json:"id"`
	TeacherID        string    `db:"teacher_id" json:"teacher_id"`
	SubjectID        string    `db:"subject_id" json:"subject_id"`
	ClassID          string    `db:"class_id" json:"class_id"`
	TermID           string    `db:"term_id" json:"term_id"`
	RemainingQuota   int       `db:"remaining_quota" json:"remaining_quota"`
	IsLab            bool      `db:"is_lab" json:"is_lab"`
	LastDecayedCycle *string   `db:"last_decayed_cycle" json:"last_decayed_cycle,omitempty"`
	Version          int       `db:"version" json:"version"`
	SubjectName      string    `db:"subject_name" json:"subject_name"`
	SubjectGroup     string    `db:"subject_group" json:"subject_group"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
