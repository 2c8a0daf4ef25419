package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

func TestResolveFromTable(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name       string
		month, day int
		year       int
		want       time.Time
	}{
		{"eid al-fitr 2025", 10, 1, 2025, domain.Date(2025, 3, 30)},
		{"eid al-adha 2025", 12, 10, 2025, domain.Date(2025, 6, 6)},
		{"ramadan 2026", 9, 1, 2026, domain.Date(2026, 2, 18)},
		{"new year 2024", 1, 1, 2024, domain.Date(2024, 7, 7)},
		{"mawlid 2027", 3, 12, 2027, domain.Date(2027, 8, 14)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.month, tt.day, tt.year)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApproximateStaysCloseToTable(t *testing.T) {
	for _, e := range curatedTable {
		want := domain.Date(e.year, e.gMonth, e.gDay)
		got := Approximate(e.month, e.day, e.year)
		diff := got.Sub(want).Hours() / 24
		if diff < -3 || diff > 3 {
			t.Errorf("%d-%d in %d: approximation %s is %v days from %s",
				e.month, e.day, e.year, got.Format(domain.DateLayout), diff, want.Format(domain.DateLayout))
		}
	}
}

func TestResolveOutsideTableLandsInRequestedYear(t *testing.T) {
	r := NewResolver()
	for _, year := range []int{2019, 2030, 2035, 2040} {
		for _, h := range DefaultHolidays() {
			got, err := r.Resolve(h.HijriMonth, h.HijriDay, year)
			assert.NoError(t, err)
			assert.Equal(t, year, got.Year())
		}
	}
}

func TestResolveRejectsInvalidHijriDate(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(13, 1, 2025)
	var verr *domain.ErrValidation
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "hijri_month", verr.Field)

	_, err = r.Resolve(1, 31, 2025)
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "hijri_day", verr.Field)
}

func TestMerge(t *testing.T) {
	r := NewResolver()
	n, err := r.Merge([]domain.HijriTableEntry{
		{Year: 2030, HijriMonth: 10, HijriDay: 1, Date: "2030-02-05"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.Resolve(10, 1, 2030)
	assert.NoError(t, err)
	assert.Equal(t, domain.Date(2030, 2, 5), got)

	_, err = r.Merge([]domain.HijriTableEntry{
		{Year: 2031, HijriMonth: 10, HijriDay: 1, Date: "2030-02-05"},
	})
	assert.Error(t, err)

	_, ok := r.Lookup(10, 1, 2031)
	assert.False(t, ok)
}

func TestIsHoliday(t *testing.T) {
	r := NewResolver()

	match, err := IsHoliday(r, domain.Date(2025, 6, 6))
	assert.NoError(t, err)
	assert.True(t, match.IsHoliday)
	assert.Equal(t, "eid-al-adha", match.Holiday.ID)

	match, err = IsHoliday(r, time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.True(t, match.IsHoliday)
	assert.Equal(t, "ramadan", match.Holiday.ID)

	match, err = IsHoliday(r, domain.Date(2025, 8, 1))
	assert.NoError(t, err)
	assert.False(t, match.IsHoliday)
	assert.True(t, match.Holiday == nil)
}

func TestMonthName(t *testing.T) {
	n, err := MonthName(9)
	assert.NoError(t, err)
	assert.Equal(t, "Ramadan", n.Latin)
	assert.Equal(t, "رمضان", n.Native)

	_, err = MonthName(0)
	assert.Error(t, err)

	assert.Equal(t, 12, len(MonthNames()))
}

func TestHolidayCatalog(t *testing.T) {
	hs := DefaultHolidays()
	assert.Equal(t, 11, len(hs))

	seen := map[string]bool{}
	for _, h := range hs {
		assert.False(t, seen[h.ID], "duplicate id %s", h.ID)
		seen[h.ID] = true
		assert.True(t, h.DefaultAmount.IsPositive())
	}

	adha, ok := HolidayByID("eid-al-adha")
	assert.True(t, ok)
	assert.Equal(t, domain.HolidayObligatory, adha.Type)
}

type countingResolver struct {
	calls int
}

func (c *countingResolver) Resolve(m, d, y int) (time.Time, error) {
	c.calls++
	return domain.Date(y, 1, 1), nil
}

func TestCachedResolver(t *testing.T) {
	inner := &countingResolver{}
	r := NewCachedResolver(inner, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(10, 1, 2025)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, inner.calls)

	r.Invalidate()
	_, err := r.Resolve(10, 1, 2025)
	assert.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
