package types

import (
	"time"
)

// All billing computations work on calendar dates, modeled as UTC midnight
// instants. Inputs are normalized on the way in so day arithmetic stays exact.

// NormalizeDate truncates a time to its UTC calendar date at midnight.
func NormalizeDate(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDate builds a UTC midnight date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from start to end.
// Both arguments must be normalized dates.
func DaysBetween(start, end time.Time) int {
	return int(end.Sub(start) / (24 * time.Hour))
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AlignBillCycleDay moves a date to the billing cycle day within its own
// month, clamping to the last day of short months. The nominal day is always
// re-applied from bcd so a clamped anchor never drifts permanently to a
// shorter day.
func AlignBillCycleDay(t time.Time, bcd int) time.Time {
	day := bcd
	if last := DaysInMonth(t.Year(), t.Month()); day > last {
		day = last
	}
	return NewDate(t.Year(), t.Month(), day)
}

// AddMonthsClamped adds months to a date, clamping the day of month to the
// last valid day of the target month. Unlike time.AddDate, adding one month
// to Jan 31 lands on Feb 28/29 rather than overflowing into March.
func AddMonthsClamped(t time.Time, months int) time.Time {
	total := int(t.Month()) - 1 + months
	year := t.Year() + total/12
	rem := total % 12
	if rem < 0 {
		rem += 12
		year--
	}
	month := time.Month(rem + 1)

	day := t.Day()
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// WholeMonthsBetween returns the largest n such that start advanced by n
// clamped months does not pass end. Clamped month-ends count as whole months:
// Jan 31 to Feb 28 is one month.
func WholeMonthsBetween(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if AddMonthsClamped(start, months).After(end) {
		months--
	}
	return months
}
