package controllers

import (
	"net/http"
	"strings"

	"github.com/campustix/campustix-backend/api/middleware"
	"github.com/campustix/campustix-backend/api/responses"
	"github.com/campustix/campustix-backend/api/validators"
	"github.com/campustix/campustix-backend/internal/checkin"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
)

type checkInRequest struct {
	Code   string `json:"code" validate:"required"`
	GateID string `json:"gate_id" validate:"required,max=64"`
}

// CheckIn admits a scanned ticket exactly once. A duplicate scan returns
// the conflict error carrying the original admission details.
func CheckIn(svc checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorRef := middleware.OperatorIDFromContext(r.Context())
		if operatorRef == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing operator credentials"))
			return
		}

		var body checkInRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.CheckInByCode(r.Context(), strings.TrimSpace(body.Code), validators.SanitizeString(body.GateID, 64), operatorRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

// LookupTicketCode resolves a scanned code without admitting the ticket.
func LookupTicketCode(svc checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code query parameter required"))
			return
		}

		ticketID, err := svc.LookupByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"ticket_id": ticketID})
	}
}
