package tiers

import (
	"context"
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
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:tiers_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.TicketTier{}); err != nil {
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

func newTestService(t *testing.T, db *gorm.DB, ob *stubOutboxPublisher) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), dbTxRunner{db: db}, ob, logger.New(logger.Options{ServiceName: "tiers-test"}))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func validInput() CreateTierInput {
	now := time.Now()
	return CreateTierInput{
		EventID:       uuid.New(),
		Name:          "General Admission",
		PriceCents:    2500,
		TotalQuantity: 100,
		SaleStartAt:   now,
		SaleEndAt:     now.Add(24 * time.Hour),
	}
}

func TestCreateTier(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()

	tier, err := svc.CreateTier(ctx, validInput())
	if err != nil {
		t.Fatalf("create tier: %v", err)
	}
	if tier.AvailableQuantity != tier.TotalQuantity {
		t.Fatalf("availability must start at capacity, got %d/%d", tier.AvailableQuantity, tier.TotalQuantity)
	}
	if tier.Closed {
		t.Fatalf("new tier must be open")
	}
}

func TestCreateTierValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateTierInput)
	}{
		{"missing event", func(in *CreateTierInput) { in.EventID = uuid.Nil }},
		{"blank name", func(in *CreateTierInput) { in.Name = "  " }},
		{"negative price", func(in *CreateTierInput) { in.PriceCents = -1 }},
		{"zero capacity", func(in *CreateTierInput) { in.TotalQuantity = 0 }},
		{"inverted window", func(in *CreateTierInput) { in.SaleEndAt = in.SaleStartAt.Add(-time.Hour) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, err := svc.CreateTier(ctx, input)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCloseTier(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ob := &stubOutboxPublisher{}
	svc := newTestService(t, db, ob)
	ctx := context.Background()

	tier, err := svc.CreateTier(ctx, validInput())
	if err != nil {
		t.Fatalf("create tier: %v", err)
	}

	closed, err := svc.CloseTier(ctx, tier.ID)
	if err != nil {
		t.Fatalf("close tier: %v", err)
	}
	if !closed.Closed || closed.ClosedAt == nil {
		t.Fatalf("expected closed tier with timestamp, got %+v", closed)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventTierClosed {
		t.Fatalf("expected one tier_closed event, got %+v", ob.events)
	}

	// Closing again is a no-op and emits nothing new.
	if _, err := svc.CloseTier(ctx, tier.ID); err != nil {
		t.Fatalf("repeat close: %v", err)
	}
	if len(ob.events) != 1 {
		t.Fatalf("repeat close must not emit, got %d events", len(ob.events))
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if !loaded.Closed {
		t.Fatalf("expected persisted closed flag")
	}
}

func TestListByEvent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()

	input := validInput()
	if _, err := svc.CreateTier(ctx, input); err != nil {
		t.Fatalf("create tier: %v", err)
	}
	vip := input
	vip.Name = "VIP"
	vip.PriceCents = 9900
	if _, err := svc.CreateTier(ctx, vip); err != nil {
		t.Fatalf("create vip tier: %v", err)
	}

	rows, err := svc.ListByEvent(ctx, input.EventID)
	if err != nil {
		t.Fatalf("list tiers: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(rows))
	}
	if rows[0].PriceCents > rows[1].PriceCents {
		t.Fatalf("expected tiers ordered by price")
	}
}
