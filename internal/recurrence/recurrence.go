// Package recurrence advances dates along a cadence with calendar-aware
// month and year arithmetic.
package recurrence

import (
	"fmt"
	"time"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// NextDate returns the next occurrence of date for the given cadence.
//
// Month and year steps clamp to the last valid day of the target month, so
// Jan 31 + 1 month is Feb 28 (or 29) and Feb 29 + 1 year is Feb 28.
func NextDate(date time.Time, cadence domain.Cadence) (time.Time, error) {
	switch cadence {
	case domain.CadenceDaily:
		return date.AddDate(0, 0, 1), nil
	case domain.CadenceWeekly:
		return date.AddDate(0, 0, 7), nil
	case domain.CadenceMonthly:
		return AddMonths(date, 1), nil
	case domain.CadenceQuarterly:
		return AddMonths(date, 3), nil
	case domain.CadenceYearly:
		return AddMonths(date, 12), nil
	}
	return time.Time{}, &domain.ErrValidation{Field: "cadence", Message: fmt.Sprintf("unknown cadence '%s'", cadence)}
}

// AddMonths adds n months to t, clamping the day to the target month's length.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := DaysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// DaysIn returns the number of days of month m in year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
