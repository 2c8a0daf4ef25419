package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

func TestNextDate(t *testing.T) {
	tests := []struct {
		name    string
		date    time.Time
		cadence domain.Cadence
		want    time.Time
	}{
		{"daily", domain.Date(2025, 3, 15), domain.CadenceDaily, domain.Date(2025, 3, 16)},
		{"daily across year", domain.Date(2024, 12, 31), domain.CadenceDaily, domain.Date(2025, 1, 1)},
		{"weekly", domain.Date(2025, 3, 15), domain.CadenceWeekly, domain.Date(2025, 3, 22)},
		{"monthly clamps to end of february", domain.Date(2025, 1, 31), domain.CadenceMonthly, domain.Date(2025, 2, 28)},
		{"monthly clamps to leap day", domain.Date(2024, 1, 31), domain.CadenceMonthly, domain.Date(2024, 2, 29)},
		{"monthly clamps to thirty days", domain.Date(2025, 3, 31), domain.CadenceMonthly, domain.Date(2025, 4, 30)},
		{"monthly across year", domain.Date(2025, 12, 15), domain.CadenceMonthly, domain.Date(2026, 1, 15)},
		{"quarterly", domain.Date(2025, 11, 30), domain.CadenceQuarterly, domain.Date(2026, 2, 28)},
		{"yearly from leap day", domain.Date(2024, 2, 29), domain.CadenceYearly, domain.Date(2025, 2, 28)},
		{"yearly", domain.Date(2025, 6, 16), domain.CadenceYearly, domain.Date(2026, 6, 16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDate(tt.date, tt.cadence)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextDateUnknownCadence(t *testing.T) {
	_, err := NextDate(domain.Date(2025, 1, 1), domain.Cadence("fortnightly"))
	var verr *domain.ErrValidation
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "cadence", verr.Field)
}

func TestMonthlyChainKeepsClampedDay(t *testing.T) {
	// Each step is computed from the previous result, so the day settles on
	// the clamped value once it has been clamped.
	d := domain.Date(2025, 1, 31)
	d, err := NextDate(d, domain.CadenceMonthly)
	assert.NoError(t, err)
	assert.Equal(t, domain.Date(2025, 2, 28), d)
	d, err = NextDate(d, domain.CadenceMonthly)
	assert.NoError(t, err)
	assert.Equal(t, domain.Date(2025, 3, 28), d)
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2100, time.February))
	assert.Equal(t, 31, DaysIn(2025, time.December))
}
