package enums

import "fmt"

// TicketStatus tracks an issued ticket's admissible life. checked_in is
// terminal for admission; refunded and void are absorbing failure states
// reachable only from the refund workflow.
type TicketStatus string

const (
	TicketStatusIssued      TicketStatus = "issued"
	TicketStatusTransferred TicketStatus = "transferred"
	TicketStatusCheckedIn   TicketStatus = "checked_in"
	TicketStatusRefunded    TicketStatus = "refunded"
	TicketStatusVoid        TicketStatus = "void"
)

var validTicketStatuses = []TicketStatus{
	TicketStatusIssued,
	TicketStatusTransferred,
	TicketStatusCheckedIn,
	TicketStatusRefunded,
	TicketStatusVoid,
}

// String implements fmt.Stringer.
func (s TicketStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TicketStatus.
func (s TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Admissible reports whether a ticket in this status can still pass a gate.
func (s TicketStatus) Admissible() bool {
	return s == TicketStatusIssued || s == TicketStatusTransferred
}

// ParseTicketStatus converts raw input into a TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}
