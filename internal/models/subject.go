package models

import (
	"strings"
	"time"
)

// Subject represents an academic subject.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	SubjectGroup string    `db:"subject_group" json:"subject_group"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsReligion reports whether the subject belongs to the shared religion quota.
func IsReligion(name, group string) bool {
	return strings.EqualFold(group, SubjectGroupReligion) ||
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "religion")
}
