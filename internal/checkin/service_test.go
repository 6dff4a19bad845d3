package checkin

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/outbox"
	"github.com/campustix/campustix-backend/pkg/ticketcode"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkin_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Ticket{}, &models.CheckInRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func newTestService(t *testing.T, db *gorm.DB, ob *stubOutboxPublisher) (Service, *ticketcode.Codec) {
	t.Helper()
	codec, err := ticketcode.NewCodec("checkin-test-secret")
	if err != nil {
		t.Fatalf("build codec: %v", err)
	}
	svc, err := NewService(NewRepository(db), dbTxRunner{db: db}, codec, ob,
		logger.New(logger.Options{ServiceName: "checkin-test"}), nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, codec
}

func seedTicket(t *testing.T, db *gorm.DB, status enums.TicketStatus) models.Ticket {
	t.Helper()
	ticket := models.Ticket{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		TierID:        uuid.New(),
		HolderUserID:  uuid.New(),
		Status:        status,
		IssuedAt:      time.Now(),
	}
	if err := db.Create(&ticket).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func TestCheckInConsumesTicketOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ob := &stubOutboxPublisher{}
	svc, _ := newTestService(t, db, ob)
	ctx := context.Background()
	ticket := seedTicket(t, db, enums.TicketStatusIssued)

	record, err := svc.CheckIn(ctx, ticket.ID, "gate-1", "op-7")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if record.GateID != "gate-1" {
		t.Fatalf("expected gate-1, got %s", record.GateID)
	}

	var loaded models.Ticket
	if err := db.First(&loaded, "id = ?", ticket.ID).Error; err != nil {
		t.Fatalf("load ticket: %v", err)
	}
	if loaded.Status != enums.TicketStatusCheckedIn {
		t.Fatalf("expected checked_in, got %s", loaded.Status)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventTicketCheckedIn {
		t.Fatalf("expected one checked-in event, got %+v", ob.events)
	}

	// The double scan surfaces the original record.
	duplicate, err := svc.CheckIn(ctx, ticket.ID, "gate-2", "op-9")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeAlreadyCheckedIn {
		t.Fatalf("expected already checked in, got %v", err)
	}
	if duplicate == nil || duplicate.ID != record.ID {
		t.Fatalf("duplicate scan must return the original record, got %+v", duplicate)
	}
	if duplicate.GateID != "gate-1" {
		t.Fatalf("expected the original gate, got %s", duplicate.GateID)
	}

	var count int64
	if err := db.Model(&models.CheckInRecord{}).Where("ticket_id = ?", ticket.ID).Count(&count).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one record, got %d", count)
	}
}

func TestCheckInConcurrentScans(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	// sqlite allows one writer; a single pooled connection makes the
	// goroutines queue on it instead of failing with a busy error.
	sqlDB.SetMaxOpenConns(1)

	ob := &stubOutboxPublisher{}
	svc, _ := newTestService(t, db, ob)
	ctx := context.Background()
	ticket := seedTicket(t, db, enums.TicketStatusIssued)

	const scans = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	duplicates := 0
	recordIDs := make(map[uuid.UUID]struct{})
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(gate int) {
			defer wg.Done()
			record, err := svc.CheckIn(ctx, ticket.ID, fmt.Sprintf("gate-%d", gate), "op-1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
				recordIDs[record.ID] = struct{}{}
				return
			}
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeAlreadyCheckedIn {
				t.Errorf("gate-%d: unexpected error %v", gate, err)
				return
			}
			duplicates++
			if record != nil {
				recordIDs[record.ID] = struct{}{}
			}
		}(i)
	}
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("expected exactly one scan to admit, got %d", admitted)
	}
	if duplicates != scans-1 {
		t.Fatalf("expected %d duplicate outcomes, got %d", scans-1, duplicates)
	}
	// Every scan, winner or loser, saw the same admission record.
	if len(recordIDs) != 1 {
		t.Fatalf("expected one record across all scans, got %d", len(recordIDs))
	}

	var count int64
	if err := db.Model(&models.CheckInRecord{}).Where("ticket_id = ?", ticket.ID).Count(&count).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one record, got %d", count)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventTicketCheckedIn {
		t.Fatalf("expected one checked-in event, got %+v", ob.events)
	}
}

func TestCheckInTransferredTicket(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	ticket := seedTicket(t, db, enums.TicketStatusTransferred)

	if _, err := svc.CheckIn(ctx, ticket.ID, "gate-1", "op-1"); err != nil {
		t.Fatalf("a transferred ticket is still admissible: %v", err)
	}
}

func TestCheckInRejectsDeadTickets(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()

	for _, status := range []enums.TicketStatus{enums.TicketStatusRefunded, enums.TicketStatusVoid} {
		ticket := seedTicket(t, db, status)
		_, err := svc.CheckIn(ctx, ticket.ID, "gate-1", "op-1")
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotEligible {
			t.Fatalf("status %s: expected not eligible, got %v", status, err)
		}
	}
}

func TestCheckInUnknownTicket(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, uuid.New(), "gate-1", "op-1")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLookupByCode(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, codec := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	ticket := seedTicket(t, db, enums.TicketStatusIssued)

	resolved, err := svc.LookupByCode(ctx, codec.Encode(ticket.ID))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if resolved != ticket.ID {
		t.Fatalf("expected %s, got %s", ticket.ID, resolved)
	}

	// Garbage fails as a bad scan, not an unknown ticket.
	_, err = svc.LookupByCode(ctx, "not-a-real-code")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidCode {
		t.Fatalf("expected invalid code, got %v", err)
	}

	// A valid code for a ticket that does not exist is NotFound.
	_, err = svc.LookupByCode(ctx, codec.Encode(uuid.New()))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	// A code signed with a different secret is a forgery.
	forged, err := ticketcode.NewCodec("some-other-secret")
	if err != nil {
		t.Fatalf("build codec: %v", err)
	}
	_, err = svc.LookupByCode(ctx, forged.Encode(ticket.ID))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidCode {
		t.Fatalf("expected invalid code for forged signature, got %v", err)
	}
}

func TestCheckInByCode(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, codec := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	ticket := seedTicket(t, db, enums.TicketStatusIssued)

	record, err := svc.CheckInByCode(ctx, codec.Encode(ticket.ID), "gate-3", "op-2")
	if err != nil {
		t.Fatalf("check in by code: %v", err)
	}
	if record.TicketID != ticket.ID {
		t.Fatalf("expected record for %s, got %s", ticket.ID, record.TicketID)
	}

	_, err = svc.CheckInByCode(ctx, "%%%", "gate-3", "op-2")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidCode {
		t.Fatalf("expected invalid code, got %v", err)
	}
}
