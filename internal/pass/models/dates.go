package models

import (
	"time"

	dErrors "transitpass/pkg/domain-errors"
)

// Permitted pass and renewal durations, in calendar months.
const (
	DurationOneMonth    = 1
	DurationThreeMonths = 3
)

func ValidateDuration(months int) error {
	if months != DurationOneMonth && months != DurationThreeMonths {
		return dErrors.New(dErrors.CodeValidation, "duration_months must be 1 or 3")
	}
	return nil
}

// DateIn returns the civil date of t as observed in loc, as midnight UTC.
// All stored validity dates use this representation.
func DateIn(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds calendar months, keeping the day of month and clamping to the
// last day of shorter months (Jan 31 + 1 month = Feb 28/29).
func AddMonths(date time.Time, months int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween counts whole days from one civil date to another.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
