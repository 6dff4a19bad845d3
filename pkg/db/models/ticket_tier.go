package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketTier is a priced ticket category with a fixed capacity.
// AvailableQuantity is only ever mutated through the inventory service's
// guarded UPDATEs; 0 <= AvailableQuantity <= TotalQuantity holds at all times.
type TicketTier struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	EventID           uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	Name              string     `gorm:"column:name;not null"`
	PriceCents        int        `gorm:"column:price_cents;not null"`
	TotalQuantity     int        `gorm:"column:total_quantity;not null"`
	AvailableQuantity int        `gorm:"column:available_quantity;not null"`
	SaleStartAt       time.Time  `gorm:"column:sale_start_at;not null"`
	SaleEndAt         time.Time  `gorm:"column:sale_end_at;not null"`
	Closed            bool       `gorm:"column:closed;not null;default:false"`
	ClosedAt          *time.Time `gorm:"column:closed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// SaleOpen reports whether the tier accepts reservations at the given instant.
func (t TicketTier) SaleOpen(now time.Time) bool {
	if t.Closed {
		return false
	}
	return !now.Before(t.SaleStartAt) && now.Before(t.SaleEndAt)
}
