package calendar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

// DefaultHolidays is the static holiday catalog, ordered by Hijri date.
func DefaultHolidays() []domain.IslamicHoliday {
	out := make([]domain.IslamicHoliday, len(holidays))
	copy(out, holidays)
	return out
}

// HolidayByID looks up a catalog entry.
func HolidayByID(id string) (domain.IslamicHoliday, bool) {
	for _, h := range holidays {
		if h.ID == id {
			return h, true
		}
	}
	return domain.IslamicHoliday{}, false
}

var holidays = []domain.IslamicHoliday{
	holiday("islamic-new-year", "Islamic New Year", "رأس السنة الهجرية", 1, 1, domain.HolidayRecommended, 50),
	holiday("ashura", "Ashura", "عاشوراء", 1, 10, domain.HolidayRecommended, 30),
	holiday("mawlid", "Mawlid al-Nabi", "المولد النبوي", 3, 12, domain.HolidayRecommended, 50),
	holiday("isra-miraj", "Isra and Mi'raj", "الإسراء والمعراج", 7, 27, domain.HolidayRecommended, 20),
	holiday("nisf-shaban", "Mid-Sha'ban", "ليلة النصف من شعبان", 8, 15, domain.HolidayRecommended, 20),
	holiday("ramadan", "Start of Ramadan", "رمضان", 9, 1, domain.HolidayRecommended, 200),
	holiday("laylat-al-qadr", "Laylat al-Qadr", "ليلة القدر", 9, 27, domain.HolidayRecommended, 50),
	holiday("zakat-al-fitr", "Zakat al-Fitr", "زكاة الفطر", 10, 1, domain.HolidayObligatory, 20),
	holiday("eid-al-fitr", "Eid al-Fitr", "عيد الفطر", 10, 1, domain.HolidayRecommended, 150),
	holiday("arafat", "Day of Arafah", "يوم عرفة", 12, 9, domain.HolidayRecommended, 20),
	holiday("eid-al-adha", "Eid al-Adha", "عيد الأضحى", 12, 10, domain.HolidayObligatory, 400),
}

func holiday(id, name, native string, month, day int, typ domain.HolidayType, amount int64) domain.IslamicHoliday {
	return domain.IslamicHoliday{
		ID:            id,
		Name:          name,
		NativeName:    native,
		HijriMonth:    month,
		HijriDay:      day,
		Type:          typ,
		DefaultAmount: decimal.NewFromInt(amount),
		IsRecurring:   true,
	}
}

// IsHoliday reports whether date is one of the catalog holidays. Every
// holiday is re-resolved for the date's year and the following year, since a
// lunar date can fall into either Gregorian year near the boundary.
func IsHoliday(r Resolver, date time.Time) (domain.HolidayMatch, error) {
	date = domain.DateOf(date)
	for _, h := range holidays {
		for _, year := range []int{date.Year(), date.Year() + 1} {
			d, err := r.Resolve(h.HijriMonth, h.HijriDay, year)
			if err != nil {
				return domain.HolidayMatch{}, err
			}
			if d.Equal(date) {
				match := h
				return domain.HolidayMatch{IsHoliday: true, Holiday: &match}, nil
			}
		}
	}
	return domain.HolidayMatch{}, nil
}
