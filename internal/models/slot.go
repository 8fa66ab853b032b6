package models

// SlotKind classifies a row of the bell schedule.
type SlotKind string

const (
	SlotKindPeriod   SlotKind = "PERIOD"
	SlotKindBreak    SlotKind = "BREAK"
	SlotKindAssembly SlotKind = "ASSEMBLY"
)

// SlotDefinition is one row of the daily bell schedule. SlotNumber is only set for periods.
type SlotDefinition struct {
	ID         string   `db:"id" json:"id"`
	Sequence   int      `db:"sequence" json:"sequence"`
	SlotNumber int      `db:"slot_number" json:"slot_number"`
	StartTime  string   `db:"start_time" json:"start_time"`
	EndTime    string   `db:"end_time" json:"end_time"`
	Kind       SlotKind `db:"kind" json:"kind"`
}

// IsAcademic reports whether the slot can hold a lesson.
func (s SlotDefinition) IsAcademic() bool {
	return s.Kind == SlotKindPeriod && s.SlotNumber > 0
}
