package dto

// CreateAssignmentRequest registers a teacher for a subject in a class.
type CreateAssignmentRequest struct {
	TeacherID      string `json:"teacherId" validate:"required"`
	SubjectID      string `json:"subjectId" validate:"required"`
	ClassID        string `json:"classId" validate:"required"`
	TermID         string `json:"termId" validate:"required"`
	RemainingQuota int    `json:"remainingQuota" validate:"min=0"`
	IsLab          bool   `json:"isLab"`
}

// UpdateQuotaRequest sets the remaining quota guarded by the row version.
type UpdateQuotaRequest struct {
	RemainingQuota int `json:"remainingQuota" validate:"min=0"`
	Version        int `json:"version" validate:"min=0"`
}
