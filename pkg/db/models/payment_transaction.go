package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/pkg/enums"
)

// PaymentTransaction is the ledger record for one purchase attempt.
// Immutable once completed or failed, except for the single permitted
// completed -> refunded transition. Version backs the optimistic guards.
type PaymentTransaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	EventID          uuid.UUID               `gorm:"column:event_id;type:uuid;not null"`
	TierID           uuid.UUID               `gorm:"column:tier_id;type:uuid;not null;index"`
	Quantity         int                     `gorm:"column:quantity;not null"`
	AmountCents      int                     `gorm:"column:amount_cents;not null"`
	Status           enums.TransactionStatus `gorm:"column:status;not null;default:'pending';index"`
	PaymentMethod    enums.PaymentMethod     `gorm:"column:payment_method;not null"`
	GatewayReference *string                 `gorm:"column:gateway_reference;uniqueIndex:ux_transactions_gateway_reference"`
	FailureReason    *string                 `gorm:"column:failure_reason"`
	Version          int                     `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
