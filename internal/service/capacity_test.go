package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

func TestWeekdaysInMonth(t *testing.T) {
	cases := []struct {
		ref  time.Time
		want int
	}{
		{time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC), 22},
		{time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), 20},
		{time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), 21},
		{time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC), 21},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WeekdaysInMonth(tc.ref), tc.ref.Format("2006-01"))
	}
}

func TestCapacityCalculator(t *testing.T) {
	calc := NewCapacityCalculator(0)
	ref := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 22*8, calc.Capacity(ref, true))
	assert.Equal(t, 0, calc.Capacity(ref, false))
	assert.Equal(t, 22*6, NewCapacityCalculator(6).Capacity(ref, true))
}

func TestEffectiveQuotaGroups(t *testing.T) {
	assignments := []models.Assignment{
		{SubjectName: "Mathematics", RemainingQuota: 40},
		{SubjectName: "Religion Islam", RemainingQuota: 12},
		{SubjectName: "Buddhism", SubjectGroup: models.SubjectGroupReligion, RemainingQuota: 16},
		{SubjectName: "Religion Hindu", RemainingQuota: 8},
		{SubjectName: "Tamil", RemainingQuota: 20},
		{SubjectName: "Sinhala", RemainingQuota: 24},
	}

	assert.Equal(t, 40+16+24, EffectiveQuota(assignments))
}

func TestValidateClassLoad(t *testing.T) {
	calc := NewCapacityCalculator(8)
	ref := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)

	fits := []models.Assignment{{SubjectName: "Physics", RemainingQuota: 160}}
	require.NoError(t, calc.ValidateClassLoad(ref, true, fits))

	over := []models.Assignment{{SubjectName: "Physics", RemainingQuota: 161}}
	err := calc.ValidateClassLoad(ref, true, over)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))

	err = calc.ValidateClassLoad(ref, false, []models.Assignment{{SubjectName: "Art", RemainingQuota: 1}})
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))
}
