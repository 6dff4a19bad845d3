package tiers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
)

// Repository manages tier administration persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTier(ctx context.Context, tier *models.TicketTier) (*models.TicketTier, error)
	FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error)
	// CloseTier flips an open tier to closed. Zero rows affected means the
	// tier was already closed.
	CloseTier(ctx context.Context, tierID uuid.UUID, closedAt time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tiers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTier(ctx context.Context, tier *models.TicketTier) (*models.TicketTier, error) {
	if err := r.db.WithContext(ctx).Create(tier).Error; err != nil {
		return nil, err
	}
	return tier, nil
}

func (r *repository) FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := r.db.WithContext(ctx).
		Where("id = ?", tierID).
		First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.TicketTier, error) {
	var rows []models.TicketTier
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("price_cents ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CloseTier(ctx context.Context, tierID uuid.UUID, closedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TicketTier{}).
		Where("id = ? AND closed = ?", tierID, false).
		Updates(map[string]any{
			"closed":     true,
			"closed_at":  closedAt,
			"updated_at": closedAt,
		})
	return res.RowsAffected, res.Error
}
