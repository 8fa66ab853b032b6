package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

// DefaultPeriodsPerDay is the academic period count used when none is configured.
const DefaultPeriodsPerDay = 8

const (
	quotaGroupReligion = "religion"
	quotaGroupLanguage = "tamil-sinhala"
)

// CapacityCalculator derives the monthly period budget of a class.
type CapacityCalculator struct {
	periodsPerDay int
}

// NewCapacityCalculator builds a calculator for the given academic periods per day.
func NewCapacityCalculator(periodsPerDay int) CapacityCalculator {
	if periodsPerDay <= 0 {
		periodsPerDay = DefaultPeriodsPerDay
	}
	return CapacityCalculator{periodsPerDay: periodsPerDay}
}

// PeriodsPerDay returns the configured academic periods per day.
func (c CapacityCalculator) PeriodsPerDay() int {
	return c.periodsPerDay
}

// Capacity counts the weekdays in the month of ref and multiplies by periods per day.
// An inactive term has no capacity.
func (c CapacityCalculator) Capacity(ref time.Time, activeTerm bool) int {
	if !activeTerm {
		return 0
	}
	return WeekdaysInMonth(ref) * c.periodsPerDay
}

// ValidateClassLoad fails with CAPACITY_EXCEEDED when the effective quota of a class is above capacity.
func (c CapacityCalculator) ValidateClassLoad(ref time.Time, activeTerm bool, assignments []models.Assignment) error {
	capacity := c.Capacity(ref, activeTerm)
	used := EffectiveQuota(assignments)
	if used > capacity {
		return appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("effective quota %d exceeds capacity %d for %s", used, capacity, ref.Format("2006-01")))
	}
	return nil
}

// WeekdaysInMonth counts Monday to Friday days in the calendar month containing ref.
func WeekdaysInMonth(ref time.Time) int {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	count := 0
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		if isSchoolDay(day) {
			count++
		}
	}
	return count
}

// EffectiveQuota sums remaining quota, counting each shared quota group once at its largest member.
func EffectiveQuota(assignments []models.Assignment) int {
	total := 0
	groups := make(map[string]int)
	for _, a := range assignments {
		group := quotaGroup(a)
		if group == "" {
			total += a.RemainingQuota
			continue
		}
		if a.RemainingQuota > groups[group] {
			groups[group] = a.RemainingQuota
		}
	}
	for _, max := range groups {
		total += max
	}
	return total
}

func quotaGroup(a models.Assignment) string {
	if models.IsReligion(a.SubjectName, a.SubjectGroup) {
		return quotaGroupReligion
	}
	switch strings.ToLower(strings.TrimSpace(a.SubjectName)) {
	case "tamil", "sinhala":
		return quotaGroupLanguage
	}
	return ""
}

func isSchoolDay(day time.Time) bool {
	wd := day.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}
