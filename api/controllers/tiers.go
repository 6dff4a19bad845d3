package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/api/responses"
	"github.com/campustix/campustix-backend/api/validators"
	"github.com/campustix/campustix-backend/internal/inventory"
	"github.com/campustix/campustix-backend/internal/tiers"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
)

type createTierRequest struct {
	EventID       string    `json:"event_id" validate:"required,uuid4"`
	Name          string    `json:"name" validate:"required,max=120"`
	PriceCents    int       `json:"price_cents" validate:"gte=0"`
	TotalQuantity int       `json:"total_quantity" validate:"required,gt=0"`
	SaleStartAt   time.Time `json:"sale_start_at" validate:"required"`
	SaleEndAt     time.Time `json:"sale_end_at" validate:"required"`
}

// AdminCreateTier provisions a new ticket tier for an event.
func AdminCreateTier(svc tiers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createTierRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eventID, err := uuid.Parse(body.EventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid event id"))
			return
		}

		tier, err := svc.CreateTier(r.Context(), tiers.CreateTierInput{
			EventID:       eventID,
			Name:          validators.SanitizeString(body.Name, 120),
			PriceCents:    body.PriceCents,
			TotalQuantity: body.TotalQuantity,
			SaleStartAt:   body.SaleStartAt,
			SaleEndAt:     body.SaleEndAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, tier)
	}
}

// AdminCloseTier stops sales on a tier immediately.
func AdminCloseTier(svc tiers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tierID, err := uuid.Parse(chi.URLParam(r, "tierId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier id"))
			return
		}

		tier, err := svc.CloseTier(r.Context(), tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tier)
	}
}

// ListEventTiers returns the tiers of an event ordered by price.
func ListEventTiers(svc tiers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuid.Parse(chi.URLParam(r, "eventId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid event id"))
			return
		}

		list, err := svc.ListByEvent(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"tiers": list})
	}
}

// GetTierAvailability serves the cached availability snapshot for a tier.
func GetTierAvailability(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tierID, err := uuid.Parse(chi.URLParam(r, "tierId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier id"))
			return
		}

		availability, err := svc.Query(r.Context(), tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}
