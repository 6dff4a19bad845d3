package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckInRecord is the terminal consumption of a ticket at a gate. The
// unique constraint on ticket_id is what makes check-in exactly-once even
// under concurrent scans.
type CheckInRecord struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TicketID    uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;uniqueIndex:ux_checkin_records_ticket_id"`
	GateID      string    `gorm:"column:gate_id;not null"`
	OperatorRef string    `gorm:"column:operator_ref;not null"`
	CheckedInAt time.Time `gorm:"column:checked_in_at;not null"`
}
