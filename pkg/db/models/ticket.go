package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/pkg/enums"
)

// Ticket is one individually admissible unit, created only when its
// transaction reaches completed: exactly one row per unit of quantity.
type Ticket struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null;index"`
	TierID        uuid.UUID          `gorm:"column:tier_id;type:uuid;not null"`
	HolderUserID  uuid.UUID          `gorm:"column:holder_user_id;type:uuid;not null;index"`
	Status        enums.TicketStatus `gorm:"column:status;not null;default:'issued'"`
	IssuedAt      time.Time          `gorm:"column:issued_at;not null"`
	Version       int                `gorm:"column:version;not null;default:0"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
