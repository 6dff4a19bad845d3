package tiers

import (
	"context"
	"fmt"
	"strings"
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

// CreateTierInput is the organizer-facing shape for a new tier. Capacity
// is fixed at creation; availability starts equal to it.
type CreateTierInput struct {
	EventID       uuid.UUID
	Name          string
	PriceCents    int
	TotalQuantity int
	SaleStartAt   time.Time
	SaleEndAt     time.Time
}

// Service is the organizer boundary for tier administration. Closing a
// tier stops new reservations immediately; it has no effect on tickets
// already sold.
type Service interface {
	CreateTier(ctx context.Context, input CreateTierInput) (*models.TicketTier, error)
	CloseTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
	GetTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the tier administration service.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tiers repository required")
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

func (s *service) CreateTier(ctx context.Context, input CreateTierInput) (*models.TicketTier, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier name required")
	}
	if input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.TotalQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total quantity must be positive")
	}
	if !input.SaleEndAt.After(input.SaleStartAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale window must end after it starts")
	}

	tier, err := s.repo.CreateTier(ctx, &models.TicketTier{
		ID:                uuid.New(),
		EventID:           input.EventID,
		Name:              input.Name,
		PriceCents:        input.PriceCents,
		TotalQuantity:     input.TotalQuantity,
		AvailableQuantity: input.TotalQuantity,
		SaleStartAt:       input.SaleStartAt,
		SaleEndAt:         input.SaleEndAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tier")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tier_id":  tier.ID.String(),
		"event_id": tier.EventID.String(),
		"capacity": tier.TotalQuantity,
	})
	s.logg.Info(logCtx, "tier created")
	return tier, nil
}

func (s *service) CloseTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	if tierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}

	tier, err := s.repo.FindTier(ctx, tierID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier.Closed {
		return tier, nil
	}

	closedAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		affected, err := repo.CloseTier(ctx, tierID, closedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close tier")
		}
		if affected == 0 {
			// Closed concurrently; nothing left to do.
			return nil
		}

		tier.Closed = true
		tier.ClosedAt = &closedAt
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTierClosed,
			AggregateType: enums.AggregateTicketTier,
			AggregateID:   tierID,
			Version:       1,
			Data: payloads.TierClosedEvent{
				TierID:            tier.ID,
				EventID:           tier.EventID,
				AvailableQuantity: tier.AvailableQuantity,
				ClosedAt:          closedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"tier_id": tierID.String()})
	s.logg.Info(logCtx, "tier closed")
	return tier, nil
}

func (s *service) GetTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	if tierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	tier, err := s.repo.FindTier(ctx, tierID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	return tier, nil
}

func (s *service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	rows, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tiers")
	}
	return rows, nil
}
