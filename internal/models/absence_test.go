package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAbsenceCoversHalfDays(t *testing.T) {
	wed := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	first := AbsenceRequest{StartDate: wed, EndDate: wed, Scope: AbsenceScopeFirstHalf}
	second := AbsenceRequest{StartDate: wed, EndDate: wed, Scope: AbsenceScopeSecondHalf}
	full := AbsenceRequest{StartDate: wed, EndDate: wed, Scope: AbsenceScopeFull}

	for slot := 1; slot <= 8; slot++ {
		assert.Equal(t, slot <= 4, first.Covers(wed, slot, 8), "first half slot %d", slot)
		assert.Equal(t, slot > 4, second.Covers(wed, slot, 8), "second half slot %d", slot)
		assert.True(t, full.Covers(wed, slot, 8))
	}
	assert.False(t, full.Covers(wed.AddDate(0, 0, 1), 1, 8))
}
