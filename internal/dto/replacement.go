package dto

import "github.com/noah-isme/sma-scheduling-engine/internal/models"

// Decline outcomes.
const (
	OutcomeNextCandidateNotified = "NEXT_CANDIDATE_NOTIFIED"
	OutcomeEscalated             = "ESCALATED"
	OutcomeAccepted              = "ACCEPTED"
)

// OccurrenceFailure records an occurrence that could not be offered.
type OccurrenceFailure struct {
	ScheduleEntryID string `json:"scheduleEntryId"`
	Date            string `json:"date"`
	SlotNumber      int    `json:"slotNumber"`
	Message         string `json:"message"`
}

// ProcessAbsenceResponse summarises substitute search for an approved absence.
type ProcessAbsenceResponse struct {
	AbsenceID           string              `json:"absenceId"`
	OccurrencesAffected int                 `json:"occurrencesAffected"`
	OffersSent          int                 `json:"offersSent"`
	Escalated           int                 `json:"escalated"`
	Failures            []OccurrenceFailure `json:"failures,omitempty"`
}

// AcceptReplacementRequest confirms a pending offer.
type AcceptReplacementRequest struct {
	CandidateID string `json:"candidateId" validate:"required"`
}

// DeclineReplacementRequest refuses a pending offer.
type DeclineReplacementRequest struct {
	CandidateID string `json:"candidateId" validate:"required"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

// RespondReplacementRequest answers an offer with the token it carried.
type RespondReplacementRequest struct {
	Token  string `json:"token" validate:"required"`
	Action string `json:"action" validate:"required,oneof=ACCEPT DECLINE"`
	Reason string `json:"reason" validate:"max=500"`
}

// DeclineReplacementResponse tells the caller where the occurrence went next.
type DeclineReplacementResponse struct {
	TaskID   string                  `json:"taskId"`
	Outcome  string                  `json:"outcome"`
	NextTask *models.ReplacementTask `json:"nextTask,omitempty"`
}

// AbsenceJobAccepted is returned when processing is queued.
type AbsenceJobAccepted struct {
	JobID     string `json:"jobId"`
	AbsenceID string `json:"absenceId"`
}

// RespondReplacementResponse reports what a token response did.
type RespondReplacementResponse struct {
	TaskID  string                  `json:"taskId"`
	Outcome string                  `json:"outcome"`
	Task    *models.ReplacementTask `json:"task,omitempty"`
}
