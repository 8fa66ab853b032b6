package dto

// GenerateTimetableRequest instructs the generator to rebuild a class timetable for a term.
type GenerateTimetableRequest struct {
	TermID string `json:"termId" validate:"required"`
}

// GenerationWarning reports an assignment whose periods did not all fit.
type GenerationWarning struct {
	AssignmentID string `json:"assignmentId"`
	SubjectID    string `json:"subjectId"`
	TeacherID    string `json:"teacherId"`
	Requested    int    `json:"requested"`
	Placed       int    `json:"placed"`
	Message      string `json:"message"`
}

// GenerateTimetableResponse summarises a generation run.
type GenerateTimetableResponse struct {
	ClassID       string              `json:"classId"`
	TermID        string              `json:"termId"`
	PlacedCount   int                 `json:"placedCount"`
	DoublePeriods int                 `json:"doublePeriods"`
	Warnings      []GenerationWarning `json:"warnings"`
}

// TimetableCell is one filled slot of a weekly grid.
type TimetableCell struct {
	EntryID             string  `json:"entryId"`
	DayOfWeek           int     `json:"dayOfWeek"`
	SlotNumber          int     `json:"slotNumber"`
	StartTime           string  `json:"startTime,omitempty"`
	EndTime             string  `json:"endTime,omitempty"`
	SubjectID           string  `json:"subjectId"`
	TeacherID           string  `json:"teacherId"`
	SubstituteTeacherID *string `json:"substituteTeacherId,omitempty"`
	IsDoublePeriod      bool    `json:"isDoublePeriod"`
}

// TimetableView is the weekly grid of a class, optionally resolved for one date.
type TimetableView struct {
	ClassID string          `json:"classId"`
	Date    *string         `json:"date,omitempty"`
	Cells   []TimetableCell `json:"cells"`
}

// TimetableQuery filters the timetable read and export endpoints.
type TimetableQuery struct {
	Date   string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
