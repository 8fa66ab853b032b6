package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ReplacementState is the lifecycle of one substitute offer.
type ReplacementState string

const (
	ReplacementPending   ReplacementState = "PENDING"
	ReplacementAccepted  ReplacementState = "ACCEPTED"
	ReplacementDeclined  ReplacementState = "DECLINED"
	ReplacementEscalated ReplacementState = "ESCALATED"
)

// ReplacementTask offers one dated occurrence to one candidate. Escalated tasks have no candidate.
type ReplacementTask struct {
	ID                 string           `db:"id" json:"id"`
	AbsenceID          string           `db:"absence_id" json:"absence_id"`
	OriginalTeacherID  string           `db:"original_teacher_id" json:"original_teacher_id"`
	CandidateTeacherID *string          `db:"candidate_teacher_id" json:"candidate_teacher_id,omitempty"`
	ClassID            string           `db:"class_id" json:"class_id"`
	SubjectID          string           `db:"subject_id" json:"subject_id"`
	ScheduleEntryID    string           `db:"schedule_entry_id" json:"schedule_entry_id"`
	PairedEntryID      *string          `db:"paired_entry_id" json:"paired_entry_id,omitempty"`
	DayOfWeek          int              `db:"day_of_week" json:"day_of_week"`
	SlotNumber         int              `db:"slot_number" json:"slot_number"`
	Date               time.Time        `db:"date" json:"date"`
	Tier               int              `db:"tier" json:"tier"`
	Priority           int              `db:"priority" json:"priority"`
	State              ReplacementState `db:"state" json:"state"`
	DeclineReason      *string          `db:"decline_reason" json:"decline_reason,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// CandidateOffer is the notification payload proposing a task to a teacher.
type CandidateOffer struct {
	TaskID            string    `json:"task_id"`
	OriginalTeacherID string    `json:"original_teacher_id"`
	ClassID           string    `json:"class_id"`
	SubjectID         string    `json:"subject_id"`
	DayOfWeek         int       `json:"day_of_week"`
	SlotNumber        int       `json:"slot_number"`
	DoublePeriod      bool      `json:"double_period"`
	Date              string    `json:"date"`
	Priority          int       `json:"priority"`
	Token             string    `json:"token"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// OfferClaims are carried by the signed token embedded in an offer. Subject is the candidate teacher.
type OfferClaims struct {
	TaskID string `json:"task_id"`
	jwt.RegisteredClaims
}
