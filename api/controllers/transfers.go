package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/api/middleware"
	"github.com/campustix/campustix-backend/api/responses"
	"github.com/campustix/campustix-backend/api/validators"
	"github.com/campustix/campustix-backend/internal/transfers"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
)

type transferRequestBody struct {
	ToUserID string `json:"to_user_id" validate:"required,uuid4"`
}

// TransferTicket reassigns one of the caller's tickets to another user.
func TransferTicket(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		ticketID, err := uuid.Parse(chi.URLParam(r, "ticketId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket id"))
			return
		}

		var body transferRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toUserID, err := uuid.Parse(body.ToUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid recipient id"))
			return
		}

		transfer, err := svc.Transfer(r.Context(), ticketID, userID, toUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transfer)
	}
}

// ListTicketTransfers returns the transfer history of a ticket.
func ListTicketTransfers(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := uuid.Parse(chi.URLParam(r, "ticketId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket id"))
			return
		}

		list, err := svc.ListForTicket(r.Context(), ticketID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transfers": list})
	}
}
