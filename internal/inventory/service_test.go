package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.TicketTier{}); err != nil {
		t.Fatalf("migrate tiers: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), nil, logger.New(logger.Options{ServiceName: "inventory-test"}), nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func seedTier(t *testing.T, db *gorm.DB, total, available int) models.TicketTier {
	t.Helper()
	now := time.Now()
	tier := models.TicketTier{
		ID:                uuid.New(),
		EventID:           uuid.New(),
		Name:              "General Admission",
		PriceCents:        2500,
		TotalQuantity:     total,
		AvailableQuantity: available,
		SaleStartAt:       now.Add(-time.Hour),
		SaleEndAt:         now.Add(time.Hour),
	}
	if err := db.Create(&tier).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	return tier
}

func TestReserveDecrementsAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 10, 10)

	reserved, err := svc.Reserve(ctx, db, tier.ID, 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserved.AvailableQuantity != 7 {
		t.Fatalf("expected returned tier to reflect decrement, got %d", reserved.AvailableQuantity)
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 7 {
		t.Fatalf("expected 7 available, got %d", loaded.AvailableQuantity)
	}
}

func TestReserveRefusesOversell(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 2)

	_, err := svc.Reserve(ctx, db, tier.ID, 3)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
		t.Fatalf("expected CodeOutOfStock, got %v", err)
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 2 {
		t.Fatalf("failed reserve must not change availability, got %d", loaded.AvailableQuantity)
	}
}

func TestReserveSequentialDrain(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 5)

	granted := 0
	for i := 0; i < 8; i++ {
		_, err := svc.Reserve(ctx, db, tier.ID, 1)
		if err == nil {
			granted++
			continue
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}
	if granted != 5 {
		t.Fatalf("expected exactly 5 grants, got %d", granted)
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 0 {
		t.Fatalf("expected drained tier, got %d available", loaded.AvailableQuantity)
	}
}

func TestReserveConcurrentDrain(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	// sqlite allows one writer; a single pooled connection makes the
	// goroutines queue on it instead of failing with a busy error.
	sqlDB.SetMaxOpenConns(1)

	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 5)

	const callers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, db, tier.ID, 1)
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
				return
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted != 5 {
		t.Fatalf("expected exactly 5 of %d concurrent reserves to win, got %d", callers, granted)
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 0 {
		t.Fatalf("expected drained tier, got %d available", loaded.AvailableQuantity)
	}
}

func TestReserveRejectsClosedTier(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 5)
	if err := db.Model(&models.TicketTier{}).Where("id = ?", tier.ID).Update("closed", true).Error; err != nil {
		t.Fatalf("close tier: %v", err)
	}

	_, err := svc.Reserve(ctx, db, tier.ID, 1)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeTierClosed {
		t.Fatalf("expected CodeTierClosed, got %v", err)
	}
}

func TestReserveRejectsOutsideSaleWindow(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	tier := models.TicketTier{
		ID:                uuid.New(),
		EventID:           uuid.New(),
		Name:              "Early Bird",
		PriceCents:        1500,
		TotalQuantity:     10,
		AvailableQuantity: 10,
		SaleStartAt:       time.Now().Add(time.Hour),
		SaleEndAt:         time.Now().Add(2 * time.Hour),
	}
	if err := db.Create(&tier).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}

	_, err := svc.Reserve(ctx, db, tier.ID, 1)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeTierClosed {
		t.Fatalf("expected CodeTierClosed before sale start, got %v", err)
	}
}

func TestReserveRefusesWhenWindowEndsMidReserve(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 5)

	// The window closes between the eligibility read and the guarded
	// write; the write-side window check has to catch it.
	calls := 0
	svc := &service{
		repo: NewRepository(db),
		logg: logger.New(logger.Options{ServiceName: "inventory-test"}),
		now: func() time.Time {
			calls++
			if calls == 1 {
				return tier.SaleEndAt.Add(-time.Minute)
			}
			return tier.SaleEndAt.Add(time.Minute)
		},
	}

	_, err := svc.Reserve(ctx, db, tier.ID, 1)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeTierClosed {
		t.Fatalf("expected CodeTierClosed, got %v", err)
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 5 {
		t.Fatalf("late reserve must not touch availability, got %d", loaded.AvailableQuantity)
	}
}

func TestReserveValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 5, 5)

	_, err := svc.Reserve(ctx, db, tier.ID, 0)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero qty, got %v", err)
	}

	_, err = svc.Reserve(ctx, db, uuid.New(), 1)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown tier, got %v", err)
	}
}

func TestReleaseRestoresAndClamps(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 10, 4)

	if err := svc.Release(ctx, db, tier.ID, 3); err != nil {
		t.Fatalf("release: %v", err)
	}

	var loaded models.TicketTier
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 7 {
		t.Fatalf("expected 7 available, got %d", loaded.AvailableQuantity)
	}

	// Releasing past capacity clamps at total_quantity.
	if err := svc.Release(ctx, db, tier.ID, 50); err != nil {
		t.Fatalf("clamped release: %v", err)
	}
	if err := db.First(&loaded, "id = ?", tier.ID).Error; err != nil {
		t.Fatalf("load tier: %v", err)
	}
	if loaded.AvailableQuantity != 10 {
		t.Fatalf("expected clamp at 10, got %d", loaded.AvailableQuantity)
	}
}

func TestQueryReturnsSnapshot(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	tier := seedTier(t, db, 10, 6)

	snapshot, err := svc.Query(ctx, tier.ID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if snapshot.AvailableQuantity != 6 || snapshot.TotalQuantity != 10 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if !snapshot.OnSale {
		t.Fatalf("expected tier on sale")
	}

	if _, err := svc.Query(ctx, uuid.New()); pkgerrors.As(err) == nil {
		t.Fatalf("expected typed error for unknown tier, got %v", err)
	}
}
