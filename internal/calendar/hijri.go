// Package calendar maps Hijri (lunar) calendar dates onto Gregorian dates.
//
// Resolution is two-tier. A hand-curated lookup table is authoritative for
// the years it covers. Outside of it a linear epoch-based approximation is
// used; lunar months alternate between 29 and 30 days and real calendars
// depend on moon sighting, so the fallback may drift by a day or two and
// must not be treated as exact.
package calendar

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// Resolver converts a Hijri month/day into its Gregorian date for a year.
type Resolver interface {
	Resolve(hijriMonth, hijriDay, gregorianYear int) (time.Time, error)
}

const (
	// hijriEpochJD is the Julian day of 1 Muharram 1 AH (civil epoch).
	hijriEpochJD = 1948439.5
	// unixEpochJD is the Julian day of 1970-01-01T00:00:00Z.
	unixEpochJD = 2440587.5

	meanYearDays  = 354.367
	meanMonthDays = 29.53
)

type tableKey struct {
	year, month, day int
}

// TableResolver resolves from its lookup table first and falls back to the
// approximation. It is safe for concurrent use.
type TableResolver struct {
	mu    sync.RWMutex
	table map[tableKey]time.Time
}

// NewResolver returns a resolver seeded with the curated table.
func NewResolver() *TableResolver {
	r := &TableResolver{table: make(map[tableKey]time.Time, len(curatedTable))}
	for _, e := range curatedTable {
		r.table[tableKey{e.year, e.month, e.day}] = domain.Date(e.year, e.gMonth, e.gDay)
	}
	return r
}

// Resolve returns the Gregorian date on which hijriMonth/hijriDay falls
// during gregorianYear.
func (r *TableResolver) Resolve(hijriMonth, hijriDay, gregorianYear int) (time.Time, error) {
	if err := validateHijri(hijriMonth, hijriDay); err != nil {
		return time.Time{}, err
	}
	if d, ok := r.Lookup(hijriMonth, hijriDay, gregorianYear); ok {
		return d, nil
	}
	return Approximate(hijriMonth, hijriDay, gregorianYear), nil
}

// Lookup answers from the table only.
func (r *TableResolver) Lookup(hijriMonth, hijriDay, gregorianYear int) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.table[tableKey{gregorianYear, hijriMonth, hijriDay}]
	return d, ok
}

// Merge adds authoritative entries to the table, replacing existing keys.
// It returns how many entries were accepted.
func (r *TableResolver) Merge(entries []domain.HijriTableEntry) (int, error) {
	parsed := make(map[tableKey]time.Time, len(entries))
	for _, e := range entries {
		if err := validateHijri(e.HijriMonth, e.HijriDay); err != nil {
			return 0, err
		}
		d, err := domain.ParseDate(e.Date)
		if err != nil {
			return 0, err
		}
		if d.Year() != e.Year {
			return 0, &domain.ErrValidation{Field: "date", Message: fmt.Sprintf("%s is not in year %d", e.Date, e.Year)}
		}
		parsed[tableKey{e.Year, e.HijriMonth, e.HijriDay}] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range parsed {
		r.table[k] = v
	}
	return len(parsed), nil
}

// Approximate is the non-authoritative fallback conversion. It picks the
// Hijri year whose occurrence of month/day falls inside gregorianYear; when
// none does (the lunar year is shorter, so this only happens at the edges)
// the closest occurrence is returned.
func Approximate(hijriMonth, hijriDay, gregorianYear int) time.Time {
	estimate := int(math.Floor(float64(gregorianYear-622)*365.2425/meanYearDays)) + 1

	var (
		best     time.Time
		bestDist = math.MaxInt
	)
	for hy := estimate - 2; hy <= estimate+2; hy++ {
		if hy < 1 {
			continue
		}
		d := HijriToGregorian(hy, hijriMonth, hijriDay)
		if d.Year() == gregorianYear {
			return d
		}
		dist := yearDistance(d, gregorianYear)
		if dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}

// HijriToGregorian converts a Hijri date with the linear mean-month formula.
func HijriToGregorian(hijriYear, hijriMonth, hijriDay int) time.Time {
	jd := hijriEpochJD +
		float64(hijriYear-1)*meanYearDays +
		float64(hijriMonth-1)*meanMonthDays +
		float64(hijriDay-1)
	days := int(math.Floor(jd - unixEpochJD))
	return time.Unix(0, 0).UTC().AddDate(0, 0, days)
}

func yearDistance(d time.Time, year int) int {
	start := domain.Date(year, time.January, 1)
	end := domain.Date(year, time.December, 31)
	switch {
	case d.Before(start):
		return int(start.Sub(d).Hours() / 24)
	case d.After(end):
		return int(d.Sub(end).Hours() / 24)
	}
	return 0
}

func validateHijri(month, day int) error {
	if month < 1 || month > 12 {
		return &domain.ErrValidation{Field: "hijri_month", Message: "must be between 1 and 12"}
	}
	if day < 1 || day > 30 {
		return &domain.ErrValidation{Field: "hijri_day", Message: "must be between 1 and 30"}
	}
	return nil
}

// curatedTable covers the holidays of DefaultHolidays for 2024–2027
// (Umm al-Qura based, first day of observance).
var curatedTable = []struct {
	year, month, day int
	gMonth           time.Month
	gDay             int
}{
	// 2024
	{2024, 7, 27, time.February, 8},
	{2024, 8, 15, time.February, 25},
	{2024, 9, 1, time.March, 11},
	{2024, 9, 27, time.April, 6},
	{2024, 10, 1, time.April, 10},
	{2024, 12, 9, time.June, 15},
	{2024, 12, 10, time.June, 16},
	{2024, 1, 1, time.July, 7},
	{2024, 1, 10, time.July, 16},
	{2024, 3, 12, time.September, 15},
	// 2025
	{2025, 7, 27, time.January, 27},
	{2025, 8, 15, time.February, 14},
	{2025, 9, 1, time.March, 1},
	{2025, 9, 27, time.March, 27},
	{2025, 10, 1, time.March, 30},
	{2025, 12, 9, time.June, 5},
	{2025, 12, 10, time.June, 6},
	{2025, 1, 1, time.June, 26},
	{2025, 1, 10, time.July, 5},
	{2025, 3, 12, time.September, 4},
	// 2026
	{2026, 7, 27, time.January, 16},
	{2026, 8, 15, time.February, 3},
	{2026, 9, 1, time.February, 18},
	{2026, 9, 27, time.March, 16},
	{2026, 10, 1, time.March, 20},
	{2026, 12, 9, time.May, 26},
	{2026, 12, 10, time.May, 27},
	{2026, 1, 1, time.June, 16},
	{2026, 1, 10, time.June, 25},
	{2026, 3, 12, time.August, 25},
	// 2027
	{2027, 7, 27, time.January, 5},
	{2027, 8, 15, time.January, 23},
	{2027, 9, 1, time.February, 8},
	{2027, 9, 27, time.March, 6},
	{2027, 10, 1, time.March, 10},
	{2027, 12, 9, time.May, 15},
	{2027, 12, 10, time.May, 16},
	{2027, 1, 1, time.June, 6},
	{2027, 1, 10, time.June, 15},
	{2027, 3, 12, time.August, 14},
}
