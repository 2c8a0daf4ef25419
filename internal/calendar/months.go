package calendar

import (
	"fmt"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
)

var monthNames = [12][2]string{
	{"Muharram", "محرم"},
	{"Safar", "صفر"},
	{"Rabi' al-Awwal", "ربيع الأول"},
	{"Rabi' al-Thani", "ربيع الآخر"},
	{"Jumada al-Ula", "جمادى الأولى"},
	{"Jumada al-Akhirah", "جمادى الآخرة"},
	{"Rajab", "رجب"},
	{"Sha'ban", "شعبان"},
	{"Ramadan", "رمضان"},
	{"Shawwal", "شوال"},
	{"Dhu al-Qa'dah", "ذو القعدة"},
	{"Dhu al-Hijjah", "ذو الحجة"},
}

// MonthName returns the Latin and native names of a Hijri month (1-12).
func MonthName(month int) (domain.MonthName, error) {
	if month < 1 || month > 12 {
		return domain.MonthName{}, &domain.ErrValidation{Field: "month", Message: fmt.Sprintf("%d is not a Hijri month", month)}
	}
	n := monthNames[month-1]
	return domain.MonthName{Number: month, Latin: n[0], Native: n[1]}, nil
}

// MonthNames lists all twelve months in order.
func MonthNames() []domain.MonthName {
	out := make([]domain.MonthName, 0, len(monthNames))
	for i, n := range monthNames {
		out = append(out, domain.MonthName{Number: i + 1, Latin: n[0], Native: n[1]})
	}
	return out
}
