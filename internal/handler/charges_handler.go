package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/service"
)

// ============================================================
// Annual Charges Handlers
// ============================================================

type chargeBody struct {
	Name       string            `json:"name"`
	Amount     decimal.Decimal   `json:"amount"`
	DueDate    string            `json:"due_date"`
	Category   string            `json:"category"`
	AccountID  *string           `json:"account_id"`
	AutoDeduct bool              `json:"auto_deduct"`
	Recurrence *domain.Cadence   `json:"recurrence"`
	Type       domain.ChargeType `json:"type"`
	Notes      string            `json:"notes"`
}

func (b chargeBody) toRequest() (*domain.CreateAnnualChargeRequest, error) {
	due, err := parseDate(b.DueDate, "due_date")
	if err != nil {
		return nil, err
	}
	if due == nil {
		return nil, &domain.ErrValidation{Field: "due_date", Message: "is required"}
	}
	return &domain.CreateAnnualChargeRequest{
		Name:       b.Name,
		Amount:     b.Amount,
		DueDate:    *due,
		Category:   b.Category,
		AccountID:  b.AccountID,
		AutoDeduct: b.AutoDeduct,
		Recurrence: b.Recurrence,
		Type:       b.Type,
		Notes:      b.Notes,
	}, nil
}

type chargePatchBody struct {
	Name         *string            `json:"name"`
	Amount       *decimal.Decimal   `json:"amount"`
	DueDate      *string            `json:"due_date"`
	Category     *string            `json:"category"`
	AccountID    *string            `json:"account_id"`
	ClearAccount bool               `json:"clear_account"`
	AutoDeduct   *bool              `json:"auto_deduct"`
	Type         *domain.ChargeType `json:"type"`
	Notes        *string            `json:"notes"`
}

func (b chargePatchBody) toPatch() (*domain.AnnualChargePatch, error) {
	due, err := parseDatePtr(b.DueDate, "due_date")
	if err != nil {
		return nil, err
	}
	return &domain.AnnualChargePatch{
		Name:         b.Name,
		Amount:       b.Amount,
		DueDate:      due,
		Category:     b.Category,
		AccountID:    b.AccountID,
		ClearAccount: b.ClearAccount,
		AutoDeduct:   b.AutoDeduct,
		Type:         b.Type,
		Notes:        b.Notes,
	}, nil
}

// currentSettings loads the persisted islamic settings that gate visibility
// and payability of islamic charges.
func currentSettings(ctx context.Context, islamic *service.IslamicService) (domain.IslamicSettings, error) {
	settings, err := islamic.GetSettings(ctx)
	if err != nil {
		return domain.IslamicSettings{}, err
	}
	return *settings, nil
}

func createChargeHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges")
		defer span.End()

		var body chargeBody
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req, err := body.toRequest()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		charge, err := svc.CreateAnnualCharge(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, charge)
	}
}

func listChargesHandler(svc *service.ObligationService, islamic *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/charges")
		defer span.End()

		paid, err := queryBool(r, "paid")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		islamicOnly, err := queryBool(r, "islamic")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		year, err := queryInt(r, "year", 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		dueBefore, err := parseDate(r.URL.Query().Get("due_before"), "due_before")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		settings, err := currentSettings(ctx, islamic)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		charges, err := svc.ListAnnualCharges(ctx, domain.ChargeFilter{
			IsPaid:      paid,
			IslamicOnly: islamicOnly != nil && *islamicOnly,
			DueBefore:   dueBefore,
			Year:        year,
		}, settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if charges == nil {
			charges = []domain.AnnualCharge{}
		}
		writeJSON(w, http.StatusOK, charges)
	}
}

func getChargeHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/charges/{id}")
		defer span.End()

		charge, err := svc.GetAnnualCharge(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, charge)
	}
}

func updateChargeHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/charges/{id}")
		defer span.End()

		var body chargePatchBody
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		patch, err := body.toPatch()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		charge, err := svc.UpdateAnnualCharge(ctx, chi.URLParam(r, "id"), patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, charge)
	}
}

func deleteChargeHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/charges/{id}")
		defer span.End()

		if err := svc.DeleteAnnualCharge(ctx, chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func canPayChargeHandler(svc *service.ObligationService, islamic *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/charges/{id}/can-pay")
		defer span.End()

		settings, err := currentSettings(ctx, islamic)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		result, err := svc.CanPayCharge(ctx, chi.URLParam(r, "id"), settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func payChargeHandler(svc *service.ObligationService, islamic *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges/{id}/pay")
		defer span.End()

		var body struct {
			AccountID *string `json:"account_id"`
		}
		if r.ContentLength != 0 {
			if err := decodeBody(r, &body); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		settings, err := currentSettings(ctx, islamic)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		result, err := svc.PayCharge(ctx, chi.URLParam(r, "id"), body.AccountID, settings)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func togglePaidHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges/{id}/toggle")
		defer span.End()

		var body struct {
			IsPaid *bool `json:"is_paid"`
		}
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if body.IsPaid == nil {
			handleServiceError(w, &domain.ErrValidation{Field: "is_paid", Message: "is required"}, logger)
			return
		}

		charge, err := svc.TogglePaidStatus(ctx, chi.URLParam(r, "id"), *body.IsPaid)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, charge)
	}
}

func enableChargeRecurrenceHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/charges/{id}/recurrence")
		defer span.End()

		var body struct {
			Recurrence domain.Cadence `json:"recurrence"`
		}
		if err := decodeBody(r, &body); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		charge, err := svc.EnableRecurrence(ctx, chi.URLParam(r, "id"), body.Recurrence)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, charge)
	}
}

func disableChargeRecurrenceHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/charges/{id}/recurrence")
		defer span.End()

		charge, err := svc.DisableRecurrence(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, charge)
	}
}

func nextYearChargesHandler(svc *service.ObligationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges/next-year")
		defer span.End()

		result := svc.GenerateRecurringChargesForNextYear(ctx)
		if len(result.Errors) > 0 {
			logger.Warn("next-year generation finished with errors", zap.Int("errors", len(result.Errors)))
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func processDueChargesHandler(svc *service.ObligationService, islamic *service.IslamicService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges/process-due")
		defer span.End()

		settings, err := currentSettings(ctx, islamic)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, svc.ProcessDueCharges(ctx, settings))
	}
}
