package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthWindow(t *testing.T) {
	start, end := MonthWindow(time.Date(2026, 8, 29, 13, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)

	// December rolls into the next year.
	start, end = MonthWindow(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodKey(t *testing.T) {
	assert.Equal(t, "2026-08", PeriodKey(time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-01", PeriodKey(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestIsLastDayOfMonth(t *testing.T) {
	assert.True(t, IsLastDayOfMonth(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)))
	assert.False(t, IsLastDayOfMonth(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)))
	assert.True(t, IsLastDayOfMonth(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)))
	assert.False(t, IsLastDayOfMonth(time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC))) // leap year
	assert.True(t, IsLastDayOfMonth(time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.True(t, IsLastDayOfMonth(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
}
