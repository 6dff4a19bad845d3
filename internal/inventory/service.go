package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/metrics"
)

const availabilityCacheTTL = 15 * time.Second

// snapshotCache is the subset of the redis client the availability read
// path needs. May be nil; the service then always reads the database.
type snapshotCache interface {
	GetAvailability(ctx context.Context, tierID string) (string, error)
	CacheAvailability(ctx context.Context, tierID string, payload string, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, tierID string) error
}

// Availability is the public view of a tier's sellable state.
type Availability struct {
	TierID            uuid.UUID `json:"tier_id"`
	Name              string    `json:"name"`
	PriceCents        int       `json:"price_cents"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	OnSale            bool      `json:"on_sale"`
}

// Service guards tier capacity. Reserve and Release run inside the caller's
// transaction so ledger state and inventory always move together. Reserve
// returns the tier so callers can price the purchase off the same read.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) (*models.TicketTier, error)
	Release(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) error
	Query(ctx context.Context, tierID uuid.UUID) (*Availability, error)
}

type service struct {
	repo    Repository
	cache   snapshotCache
	logg    *logger.Logger
	metrics *metrics.TicketingMetrics
	now     func() time.Time
}

// NewService builds the inventory service.
func NewService(repo Repository, cache snapshotCache, logg *logger.Logger, m *metrics.TicketingMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		cache:   cache,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) (*models.TicketTier, error) {
	if tierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	repo := s.repo.WithTx(tx)

	tier, err := repo.FindTier(ctx, tierID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if !tier.SaleOpen(s.now()) {
		s.metrics.IncReservation("closed")
		return nil, pkgerrors.New(pkgerrors.CodeTierClosed, "tier is not on sale")
	}

	affected, err := repo.ReserveQuantity(ctx, tierID, qty, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve inventory")
	}
	if affected == 0 {
		// The guard also covers the sale window, so a tier whose window
		// ended between the read above and this write loses here.
		if !tier.SaleOpen(s.now()) {
			s.metrics.IncReservation("closed")
			return nil, pkgerrors.New(pkgerrors.CodeTierClosed, "tier is not on sale")
		}
		s.metrics.IncReservation("sold_out")
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "tier sold out").
			WithDetails(map[string]any{"tier_id": tierID, "requested": qty})
	}

	tier.AvailableQuantity -= qty
	s.metrics.IncReservation("reserved")
	s.invalidate(ctx, tierID)
	return tier, nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) error {
	if tierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	if qty <= 0 {
		return nil
	}
	repo := s.repo.WithTx(tx)

	tier, err := repo.FindTier(ctx, tierID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}
	if tier.AvailableQuantity+qty > tier.TotalQuantity {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tier_id":   tierID.String(),
			"requested": qty,
			"available": tier.AvailableQuantity,
			"total":     tier.TotalQuantity,
		})
		s.logg.Warn(logCtx, "release clamped at tier capacity")
	}

	if _, err := repo.RestoreQuantity(ctx, tierID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory")
	}

	s.invalidate(ctx, tierID)
	return nil
}

func (s *service) Query(ctx context.Context, tierID uuid.UUID) (*Availability, error) {
	if tierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}

	if s.cache != nil {
		if cached, err := s.cache.GetAvailability(ctx, tierID.String()); err == nil && cached != "" {
			var snapshot Availability
			if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
				return &snapshot, nil
			}
		}
	}

	tier, err := s.repo.FindTier(ctx, tierID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tier")
	}

	snapshot := &Availability{
		TierID:            tier.ID,
		Name:              tier.Name,
		PriceCents:        tier.PriceCents,
		TotalQuantity:     tier.TotalQuantity,
		AvailableQuantity: tier.AvailableQuantity,
		OnSale:            tier.SaleOpen(s.now()),
	}

	if s.cache != nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.CacheAvailability(ctx, tierID.String(), string(payload), availabilityCacheTTL); err != nil {
				s.logg.Warn(ctx, "caching availability snapshot failed")
			}
		}
	}
	return snapshot, nil
}

func (s *service) invalidate(ctx context.Context, tierID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(ctx, tierID.String()); err != nil {
		s.logg.Warn(ctx, "invalidating availability snapshot failed")
	}
}
