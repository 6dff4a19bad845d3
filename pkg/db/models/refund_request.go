package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/pkg/enums"
)

// RefundRequest references exactly one transaction. At most one
// non-rejected request may be in flight per transaction.
type RefundRequest struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null;index"`
	UserID        uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	Reason        string             `gorm:"column:reason;not null"`
	Status        enums.RefundStatus `gorm:"column:status;not null;default:'pending'"`
	AmountCents   int                `gorm:"column:amount_cents;not null"`
	DecidedAt     *time.Time         `gorm:"column:decided_at"`
	SettledAt     *time.Time         `gorm:"column:settled_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
