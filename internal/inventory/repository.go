package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
)

// Repository exposes tier inventory storage operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
	ReserveQuantity(ctx context.Context, tierID uuid.UUID, qty int, now time.Time) (int64, error)
	RestoreQuantity(ctx context.Context, tierID uuid.UUID, qty int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
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

// ReserveQuantity decrements availability with a guard that refuses to go
// below zero or touch a closed tier or one outside its sale window. Zero
// rows affected means the decrement lost: sold out, closed, or the window
// ended between the caller's read and this write.
func (r *repository) ReserveQuantity(ctx context.Context, tierID uuid.UUID, qty int, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE ticket_tiers
		SET available_quantity = available_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND closed = ? AND available_quantity >= ?
			AND sale_start_at <= ? AND sale_end_at > ?
	`, qty, tierID, false, qty, now, now)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RestoreQuantity returns units to the tier, clamped at total_quantity so a
// double release can never inflate capacity.
func (r *repository) RestoreQuantity(ctx context.Context, tierID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE ticket_tiers
		SET available_quantity = CASE
				WHEN available_quantity + ? > total_quantity THEN total_quantity
				ELSE available_quantity + ?
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, qty, tierID)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
