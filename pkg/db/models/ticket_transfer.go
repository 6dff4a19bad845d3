package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/pkg/enums"
)

// TicketTransfer records one holder reassignment of an issued ticket.
type TicketTransfer struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TicketID      uuid.UUID            `gorm:"column:ticket_id;type:uuid;not null;index"`
	FromUserID    uuid.UUID            `gorm:"column:from_user_id;type:uuid;not null"`
	ToUserID      uuid.UUID            `gorm:"column:to_user_id;type:uuid;not null"`
	Status        enums.TransferStatus `gorm:"column:status;not null;default:'pending'"`
	TransferredAt *time.Time           `gorm:"column:transferred_at"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
}
