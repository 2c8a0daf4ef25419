package domain

import (
	"time"
)

// Cadence is how often a recurring item repeats.
type Cadence string

const (
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

// ValidForTransaction reports whether c may drive a transaction template.
func (c Cadence) ValidForTransaction() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceYearly:
		return true
	}
	return false
}

// ValidForCharge reports whether c may drive an annual charge.
func (c Cadence) ValidForCharge() bool {
	switch c {
	case CadenceMonthly, CadenceQuarterly, CadenceYearly:
		return true
	}
	return false
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date at UTC midnight. All ledger dates
// are stored in this form so that equality and ordering are date-based.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ErrValidation{Field: "date", Message: "invalid format, use YYYY-MM-DD"}
	}
	return t, nil
}

// SameDate reports whether a and b fall on the same calendar day.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
