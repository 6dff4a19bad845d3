package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/outbox"
	"github.com/campustix/campustix-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service reassigns ticket holders. A transfer never changes a ticket's
// admissible life: a transferred ticket can still be checked in exactly
// once.
type Service interface {
	Transfer(ctx context.Context, ticketID, fromUserID, toUserID uuid.UUID) (*models.TicketTransfer, error)
	ListForTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketTransfer, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the transfer workflow service.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transfers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: ob,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) Transfer(ctx context.Context, ticketID, fromUserID, toUserID uuid.UUID) (*models.TicketTransfer, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	if fromUserID == uuid.Nil || toUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both holder ids required")
	}

	ticket, err := s.repo.FindTicket(ctx, ticketID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	if ticket.HolderUserID != fromUserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "ticket is not held by the requesting user")
	}
	if ticket.Status == enums.TicketStatusCheckedIn {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyUsed, "ticket was already used for admission")
	}
	if !ticket.Status.Admissible() {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible,
			fmt.Sprintf("ticket in status %s cannot be transferred", ticket.Status))
	}

	transferredAt := s.now()
	if fromUserID == toUserID {
		// Self-transfer succeeds without touching the ticket. Nothing is
		// persisted, so the returned view carries no record ID.
		return &models.TicketTransfer{
			TicketID:      ticketID,
			FromUserID:    fromUserID,
			ToUserID:      toUserID,
			Status:        enums.TransferStatusCompleted,
			TransferredAt: &transferredAt,
		}, nil
	}

	var transfer *models.TicketTransfer
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		affected, err := repo.ReassignHolder(ctx, ticketID, fromUserID, toUserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign holder")
		}
		if affected == 0 {
			// Re-read to name the competing operation.
			current, err := repo.FindTicket(ctx, ticketID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload ticket")
			}
			if current.Status == enums.TicketStatusCheckedIn {
				return pkgerrors.New(pkgerrors.CodeAlreadyUsed, "ticket was already used for admission")
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "ticket changed hands concurrently")
		}

		created, err := repo.CreateTransfer(ctx, &models.TicketTransfer{
			ID:            uuid.New(),
			TicketID:      ticketID,
			FromUserID:    fromUserID,
			ToUserID:      toUserID,
			Status:        enums.TransferStatusCompleted,
			TransferredAt: &transferredAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transfer")
		}
		transfer = created

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketTransferred,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticketID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: fromUserID},
			Data: payloads.TicketTransferredEvent{
				TicketID:   ticketID,
				FromUserID: fromUserID,
				ToUserID:   toUserID,
				TierID:     ticket.TierID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"ticket_id":    ticketID.String(),
		"from_user_id": fromUserID.String(),
		"to_user_id":   toUserID.String(),
	})
	s.logg.Info(logCtx, "ticket transferred")
	return transfer, nil
}

func (s *service) ListForTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketTransfer, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	rows, err := s.repo.ListForTicket(ctx, ticketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transfers")
	}
	return rows, nil
}
