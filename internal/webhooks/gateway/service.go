package gatewayhook

import (
	"context"
	"fmt"

	"github.com/campustix/campustix-backend/internal/ledger"
	"github.com/campustix/campustix-backend/pkg/db/models"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/gateway"
	"github.com/campustix/campustix-backend/pkg/logger"
)

// ledgerService is the slice of the ledger the webhook needs.
type ledgerService interface {
	Confirm(ctx context.Context, input ledger.ConfirmInput) (*ledger.ConfirmResult, error)
	Fail(ctx context.Context, input ledger.FailInput) (*models.PaymentTransaction, error)
}

// ServiceParams configure the gateway webhook processor.
type ServiceParams struct {
	Ledger ledgerService
	Guard  *IdempotencyGuard
	Logger *logger.Logger
}

// Service applies rail charge notifications to the transaction ledger.
type Service struct {
	ledger ledgerService
	guard  *IdempotencyGuard
	logg   *logger.Logger
}

// NewService builds the webhook processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		ledger: params.Ledger,
		guard:  params.Guard,
		logg:   params.Logger,
	}, nil
}

// Process applies a verified webhook event. Deliveries are deduplicated by
// event id; a processing failure unmarks the event so the rail's retry can
// land.
func (s *Service) Process(ctx context.Context, event *gateway.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"webhook_event_id": event.EventID,
		"reference":        event.Reference,
		"charge_status":    string(event.Status),
	})

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedup")
		}
		if seen {
			s.logg.Info(logCtx, "webhook delivery already processed")
			return nil
		}
	}

	if err := s.apply(ctx, event); err != nil {
		// A state conflict means the row already settled another way, by a
		// racing confirm or the sweep. The delivery is done, not failed.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			s.logg.Warn(logCtx, "webhook outcome superseded by ledger state")
			return nil
		}
		if s.guard != nil {
			if delErr := s.guard.Delete(ctx, event.EventID); delErr != nil {
				s.logg.Error(logCtx, "failed to unmark webhook event", delErr)
			}
		}
		return err
	}

	s.logg.Info(logCtx, "webhook applied to ledger")
	return nil
}

func (s *Service) apply(ctx context.Context, event *gateway.WebhookEvent) error {
	switch event.Status {
	case gateway.ChargeStatusSucceeded:
		_, err := s.ledger.Confirm(ctx, ledger.ConfirmInput{GatewayReference: event.Reference})
		return err
	case gateway.ChargeStatusFailed:
		reason := event.Reason
		if reason == "" {
			reason = "gateway reported failure"
		}
		_, err := s.ledger.Fail(ctx, ledger.FailInput{GatewayReference: event.Reference, Reason: reason})
		return err
	case gateway.ChargeStatusPending:
		// Nothing to apply yet; the rail will send a terminal status later.
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown charge status").
			WithDetails(map[string]any{"status": string(event.Status)})
	}
}
