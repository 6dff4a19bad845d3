package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TicketingMetrics tracks the hot-path counters for sales and admission.
type TicketingMetrics struct {
	reservations  *prometheus.CounterVec
	transactions  *prometheus.CounterVec
	checkIns      *prometheus.CounterVec
	sweepExpired  prometheus.Counter
	ticketsIssued prometheus.Counter
}

// NewTicketingMetrics registers the ticketing metrics on the provided registerer.
func NewTicketingMetrics(reg prometheus.Registerer) *TicketingMetrics {
	if reg == nil {
		return &TicketingMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Tier inventory reservation attempts by outcome.",
	}, []string{"outcome"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_total",
		Help: "Ledger transactions by terminal status.",
	}, []string{"status"})
	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "check_ins_total",
		Help: "Gate check-in attempts by outcome.",
	}, []string{"outcome"})
	sweepExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_expired_transactions_total",
		Help: "Pending transactions expired by the sweep worker.",
	})
	ticketsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Tickets issued on confirmed transactions.",
	})
	reg.MustRegister(reservations, transactions, checkIns, sweepExpired, ticketsIssued)
	return &TicketingMetrics{
		reservations:  reservations,
		transactions:  transactions,
		checkIns:      checkIns,
		sweepExpired:  sweepExpired,
		ticketsIssued: ticketsIssued,
	}
}

// IncReservation records a reservation attempt outcome (reserved, sold_out, closed).
func (t *TicketingMetrics) IncReservation(outcome string) {
	if t == nil || t.reservations == nil {
		return
	}
	t.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransaction records a transaction reaching a terminal status.
func (t *TicketingMetrics) IncTransaction(status string) {
	if t == nil || t.transactions == nil {
		return
	}
	t.transactions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncCheckIn records a check-in attempt outcome (admitted, duplicate, rejected).
func (t *TicketingMetrics) IncCheckIn(outcome string) {
	if t == nil || t.checkIns == nil {
		return
	}
	t.checkIns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSweepExpired counts a pending transaction expired by the sweeper.
func (t *TicketingMetrics) IncSweepExpired() {
	if t == nil || t.sweepExpired == nil {
		return
	}
	t.sweepExpired.Inc()
}

// AddTicketsIssued counts tickets created by a confirm.
func (t *TicketingMetrics) AddTicketsIssued(n int) {
	if t == nil || t.ticketsIssued == nil || n <= 0 {
		return
	}
	t.ticketsIssued.Add(float64(n))
}
