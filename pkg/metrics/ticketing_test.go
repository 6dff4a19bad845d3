package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTicketingMetricsRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTicketingMetrics(reg)

	m.IncReservation("reserved")
	m.IncReservation("sold_out")
	m.IncTransaction("completed")
	m.IncCheckIn("admitted")
	m.IncSweepExpired()
	m.AddTicketsIssued(3)
	m.AddTicketsIssued(0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "inventory_reservations_total", "outcome", "reserved"); err != nil {
		t.Fatalf("fetch reservations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected reserved=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "check_ins_total", "outcome", "admitted"); err != nil {
		t.Fatalf("fetch check-ins: %v", err)
	} else if got != 1 {
		t.Fatalf("expected admitted=1, got %f", got)
	}

	issued := findMetricFamily(mfs, "tickets_issued_total")
	if issued == nil {
		t.Fatal("tickets_issued_total not registered")
	}
	if got := issued.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected 3 tickets issued, got %f", got)
	}
}

func TestTicketingMetricsNilReceiverSafe(t *testing.T) {
	var m *TicketingMetrics
	m.IncReservation("reserved")
	m.IncTransaction("failed")
	m.IncCheckIn("duplicate")
	m.IncSweepExpired()
	m.AddTicketsIssued(1)
}
