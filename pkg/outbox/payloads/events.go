package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/campustix/campustix-backend/pkg/enums"
)

// TransactionCompletedEvent signals a confirmed purchase with its issued tickets.
type TransactionCompletedEvent struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	UserID        uuid.UUID   `json:"user_id"`
	TierID        uuid.UUID   `json:"tier_id"`
	Quantity      int         `json:"quantity"`
	AmountCents   int         `json:"amount_cents"`
	TicketIDs     []uuid.UUID `json:"ticket_ids"`
}

// TransactionFailedEvent is emitted when a pending transaction fails.
type TransactionFailedEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	TierID        uuid.UUID `json:"tier_id"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason,omitempty"`
}

// TransactionExpiredEvent reports a pending transaction reaped by the sweeper.
type TransactionExpiredEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	TierID        uuid.UUID `json:"tier_id"`
	Quantity      int       `json:"quantity"`
	ExpiredAt     time.Time `json:"expired_at"`
	PendingFor    string    `json:"pending_for,omitempty"`
}

// RefundDecidedEvent is emitted when a refund request is approved or rejected.
type RefundDecidedEvent struct {
	RefundRequestID uuid.UUID          `json:"refund_request_id"`
	TransactionID   uuid.UUID          `json:"transaction_id"`
	UserID          uuid.UUID          `json:"user_id"`
	Status          enums.RefundStatus `json:"status"`
	AmountCents     int                `json:"amount_cents"`
}

// RefundSettledEvent surfaces the completed refund and its inventory restore.
type RefundSettledEvent struct {
	RefundRequestID  uuid.UUID `json:"refund_request_id"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	TierID           uuid.UUID `json:"tier_id"`
	QuantityRestored int       `json:"quantity_restored"`
	AmountCents      int       `json:"amount_cents"`
	SettledAt        time.Time `json:"settled_at"`
}

// TicketTransferredEvent records a completed holder reassignment.
type TicketTransferredEvent struct {
	TicketID   uuid.UUID `json:"ticket_id"`
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	TierID     uuid.UUID `json:"tier_id"`
}

// TicketCheckedInEvent is emitted on successful gate admission.
type TicketCheckedInEvent struct {
	TicketID    uuid.UUID `json:"ticket_id"`
	TierID      uuid.UUID `json:"tier_id"`
	GateID      string    `json:"gate_id"`
	OperatorRef string    `json:"operator_ref"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// TierClosedEvent tells downstream systems a tier stopped selling.
type TierClosedEvent struct {
	TierID            uuid.UUID `json:"tier_id"`
	EventID           uuid.UUID `json:"event_id"`
	AvailableQuantity int       `json:"available_quantity"`
	ClosedAt          time.Time `json:"closed_at"`
}
