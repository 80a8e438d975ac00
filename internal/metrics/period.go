package metrics

import "time"

// Billing periods are calendar months in UTC, derived from the clock at call
// time; they are not stored.

// MonthWindow returns [first of t's month, first of next month).
func MonthWindow(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// PeriodKey identifies a billing period, e.g. "2026-08".
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// IsLastDayOfMonth reports whether t falls on the month's final calendar day.
func IsLastDayOfMonth(t time.Time) bool {
	t = t.UTC()
	return t.AddDate(0, 0, 1).Month() != t.Month()
}
