package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/api/middleware"
	"github.com/campustix/campustix-backend/api/responses"
	"github.com/campustix/campustix-backend/api/validators"
	"github.com/campustix/campustix-backend/internal/ledger"
	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/pagination"
	"github.com/campustix/campustix-backend/pkg/ticketcode"
)

type purchaseRequest struct {
	TierID        string `json:"tier_id" validate:"required,uuid4"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

type ticketView struct {
	ID            uuid.UUID          `json:"id"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	TierID        uuid.UUID          `json:"tier_id"`
	Status        enums.TicketStatus `json:"status"`
	Code          string             `json:"code,omitempty"`
}

func ticketViews(codec *ticketcode.Codec, tickets []models.Ticket) []ticketView {
	views := make([]ticketView, 0, len(tickets))
	for _, ticket := range tickets {
		view := ticketView{
			ID:            ticket.ID,
			TransactionID: ticket.TransactionID,
			TierID:        ticket.TierID,
			Status:        ticket.Status,
		}
		// Scan codes are only useful for tickets that can still admit.
		if codec != nil && ticket.Status.Admissible() {
			view.Code = codec.Encode(ticket.ID)
		}
		views = append(views, view)
	}
	return views
}

// ReserveAndPay opens a transaction against a tier and charges the rail.
func ReserveAndPay(svc ledger.Service, codec *ticketcode.Codec, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var body purchaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tierID, err := uuid.Parse(body.TierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier id"))
			return
		}
		method, err := enums.ParsePaymentMethod(body.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method"))
			return
		}

		txn, err := svc.Begin(r.Context(), ledger.BeginInput{
			UserID:        userID,
			TierID:        tierID,
			Quantity:      body.Quantity,
			PaymentMethod: method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"transaction": txn}
		if txn.Status == enums.TransactionStatusCompleted {
			tickets, ticketsErr := svc.TicketsForTransaction(r.Context(), txn.ID)
			if ticketsErr != nil {
				responses.WriteError(r.Context(), logg, w, ticketsErr)
				return
			}
			payload["tickets"] = ticketViews(codec, tickets)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payload)
	}
}

// GetTransaction returns one of the caller's transactions with its tickets.
func GetTransaction(svc ledger.Service, codec *ticketcode.Codec, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		transactionID, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction id"))
			return
		}

		txn, err := svc.GetTransaction(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if txn.UserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found"))
			return
		}

		tickets, err := svc.TicketsForTransaction(r.Context(), txn.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transaction": txn,
			"tickets":     ticketViews(codec, tickets),
		})
	}
}

// ListUserTransactions returns the caller's purchase history.
func ListUserTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListUserTransactions(r.Context(), userID, pagination.NormalizeLimit(limit))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transactions": list})
	}
}

// ListUserTickets returns all tickets the caller currently holds.
func ListUserTickets(svc ledger.Service, codec *ticketcode.Codec, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		tickets, err := svc.ListUserTickets(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"tickets": ticketViews(codec, tickets)})
	}
}
