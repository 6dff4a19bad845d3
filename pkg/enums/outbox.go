package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregateTicket             OutboxAggregateType = "ticket"
	AggregateRefundRequest      OutboxAggregateType = "refund_request"
	AggregateTicketTier         OutboxAggregateType = "ticket_tier"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePaymentTransaction,
	AggregateTicket,
	AggregateRefundRequest,
	AggregateTicketTier,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTransactionCompleted OutboxEventType = "transaction_completed"
	EventTransactionFailed    OutboxEventType = "transaction_failed"
	EventTransactionExpired   OutboxEventType = "transaction_expired"
	EventRefundDecided        OutboxEventType = "refund_decided"
	EventRefundSettled        OutboxEventType = "refund_settled"
	EventTicketTransferred    OutboxEventType = "ticket_transferred"
	EventTicketCheckedIn      OutboxEventType = "ticket_checked_in"
	EventTierClosed           OutboxEventType = "tier_closed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransactionCompleted,
	EventTransactionFailed,
	EventTransactionExpired,
	EventRefundDecided,
	EventRefundSettled,
	EventTicketTransferred,
	EventTicketCheckedIn,
	EventTierClosed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
