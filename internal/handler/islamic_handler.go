package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

// ============================================================
// Islamic Obligations Handlers
// ============================================================

func getIslamicSettingsHandler(svc *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/islamic/settings")
		defer span.End()

		settings, err := svc.GetSettings(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func saveIslamicSettingsHandler(svc *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/islamic/settings")
		defer span.End()

		var settings domain.IslamicSettings
		if err := decodeBody(r, &settings); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		saved, err := svc.SaveSettings(ctx, &settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func setGenerationAllowedHandler(svc *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/islamic/generation")
		defer span.End()

		var body struct {
			Allowed *bool `json:"allowed"`
		}
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if body.Allowed == nil {
			handleServiceError(w, &domain.ErrValidation{Field: "allowed", Message: "is required"}, logger)
			return
		}

		saved, err := svc.SetGenerationAllowed(ctx, *body.Allowed)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func generateIslamicChargesHandler(svc *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/islamic/generate")
		defer span.End()

		var body struct {
			Year               int   `json:"year"`
			IncludeRecommended *bool `json:"include_recommended"`
		}
		if r.ContentLength != 0 {
			if err := decodeBody(r, &body); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}
		if body.Year == 0 {
			body.Year = time.Now().UTC().Year()
		}

		settings, err := svc.GetSettings(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		// one-off override, not persisted
		if body.IncludeRecommended != nil {
			settings.IncludeRecommended = *body.IncludeRecommended
		}

		result, err := svc.GenerateChargesForYear(ctx, body.Year, *settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		status := http.StatusOK
		if result.Created > 0 {
			status = http.StatusCreated
		}
		writeJSON(w, status, result)
	}
}

func listIslamicChargesHandler(svc *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/islamic/charges")
		defer span.End()

		year, err := queryInt(r, "year", time.Now().UTC().Year())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		settings, err := svc.GetSettings(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		charges, err := svc.ListIslamicCharges(ctx, year, *settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, charges)
	}
}

func deleteIslamicChargesHandler(svc *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/islamic/charges")
		defer span.End()

		deleted, err := svc.DeleteAllIslamicCharges(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.DeletedResponse{Deleted: deleted})
	}
}

// ============================================================
// Calendar Handlers
// ============================================================

func listHolidaysHandler(svc *service.CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Holidays())
	}
}

func listMonthNamesHandler(svc *service.CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.MonthNames())
	}
}

func resolveDateHandler(svc *service.CalendarService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar/resolve")
		defer span.End()

		month, err := queryInt(r, "month", 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		day, err := queryInt(r, "day", 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		year, err := queryInt(r, "year", time.Now().UTC().Year())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		date, err := svc.Resolve(ctx, month, day, year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hijri_month": month,
			"hijri_day":   day,
			"year":        year,
			"date":        date.Format(domain.DateLayout),
		})
	}
}

func isHolidayHandler(svc *service.CalendarService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar/is-holiday")
		defer span.End()

		date, err := parseDate(r.URL.Query().Get("date"), "date")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if date == nil {
			handleServiceError(w, &domain.ErrValidation{Field: "date", Message: "is required"}, logger)
			return
		}

		match, err := svc.IsHoliday(ctx, *date)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, match)
	}
}

func syncCalendarHandler(svc *service.CalendarService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/calendar/sync")
		defer span.End()

		var body struct {
			Years []int `json:"years"`
		}
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if len(body.Years) == 0 {
			handleServiceError(w, &domain.ErrValidation{Field: "years", Message: "is required"}, logger)
			return
		}

		merged, err := svc.SyncYears(ctx, body.Years)
		if err != nil && merged == 0 {
			handleServiceError(w, err, logger)
			return
		}
		resp := map[string]any{"merged": merged}
		if err != nil {
			resp["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
