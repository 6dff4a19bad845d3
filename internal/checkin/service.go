package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db"
	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/metrics"
	"github.com/campustix/campustix-backend/pkg/outbox"
	"github.com/campustix/campustix-backend/pkg/outbox/payloads"
	"github.com/campustix/campustix-backend/pkg/ticketcode"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service consumes tickets at the gate. CheckIn is exactly-once per
// ticket: of any number of concurrent scans, exactly one creates the
// CheckInRecord; the rest get the original record back with an
// ALREADY_CHECKED_IN error so operators see "already used".
type Service interface {
	// CheckIn returns the created record. On a duplicate scan the returned
	// record is the original one and the error carries CodeAlreadyCheckedIn.
	CheckIn(ctx context.Context, ticketID uuid.UUID, gateID, operatorRef string) (*models.CheckInRecord, error)
	// LookupByCode resolves a scanned code to a ticket id. A malformed or
	// forged code fails with CodeInvalidCode; a well-formed code pointing at
	// no ticket fails with CodeNotFound.
	LookupByCode(ctx context.Context, rawCode string) (uuid.UUID, error)
	// CheckInByCode is LookupByCode followed by CheckIn.
	CheckInByCode(ctx context.Context, rawCode, gateID, operatorRef string) (*models.CheckInRecord, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	codec   *ticketcode.Codec
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.TicketingMetrics
	now     func() time.Time
}

// NewService builds the check-in service.
func NewService(repo Repository, tx txRunner, codec *ticketcode.Codec, ob outboxPublisher, logg *logger.Logger, m *metrics.TicketingMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("check-in repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if codec == nil {
		return nil, fmt.Errorf("ticket code codec required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		codec:   codec,
		outbox:  ob,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

func (s *service) CheckIn(ctx context.Context, ticketID uuid.UUID, gateID, operatorRef string) (*models.CheckInRecord, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	if strings.TrimSpace(gateID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gate id required")
	}

	ticket, err := s.repo.FindTicket(ctx, ticketID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.metrics.IncCheckIn("not_found")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}

	if ticket.Status == enums.TicketStatusCheckedIn {
		return s.duplicateScan(ctx, ticketID)
	}
	if !ticket.Status.Admissible() {
		s.metrics.IncCheckIn("not_admissible")
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible,
			fmt.Sprintf("ticket in status %s is not admissible", ticket.Status))
	}

	checkedInAt := s.now()
	var record *models.CheckInRecord
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		affected, err := repo.ConsumeTicket(ctx, ticketID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume ticket")
		}
		if affected == 0 {
			current, err := repo.FindTicket(ctx, ticketID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload ticket")
			}
			if current.Status == enums.TicketStatusCheckedIn {
				return errLostScanRace
			}
			return pkgerrors.New(pkgerrors.CodeNotEligible,
				fmt.Sprintf("ticket in status %s is not admissible", current.Status))
		}

		created, err := repo.CreateRecord(ctx, &models.CheckInRecord{
			ID:          uuid.New(),
			TicketID:    ticketID,
			GateID:      gateID,
			OperatorRef: operatorRef,
			CheckedInAt: checkedInAt,
		})
		if err != nil {
			// The unique index on ticket_id is the last line of defense.
			if db.IsUniqueViolation(err, "ux_checkin_records_ticket_id") {
				return errLostScanRace
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create check-in record")
		}
		record = created

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketCheckedIn,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticketID,
			Version:       1,
			Actor:         &outbox.ActorRef{OperatorRef: operatorRef},
			Data: payloads.TicketCheckedInEvent{
				TicketID:    ticketID,
				TierID:      ticket.TierID,
				GateID:      gateID,
				OperatorRef: operatorRef,
				CheckedInAt: checkedInAt,
			},
		})
	})
	if err == errLostScanRace {
		return s.duplicateScan(ctx, ticketID)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.IncCheckIn("admitted")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"ticket_id": ticketID.String(),
		"gate_id":   gateID,
	})
	s.logg.Info(logCtx, "ticket checked in")
	return record, nil
}

// errLostScanRace is an internal sentinel: another scan consumed the
// ticket between our read and our guarded update.
var errLostScanRace = fmt.Errorf("lost check-in race")

// duplicateScan surfaces the original admission so the gate shows when
// and where the ticket was first used.
func (s *service) duplicateScan(ctx context.Context, ticketID uuid.UUID) (*models.CheckInRecord, error) {
	s.metrics.IncCheckIn("duplicate")
	original, err := s.repo.FindRecordByTicket(ctx, ticketID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "ticket already checked in")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load original check-in")
	}
	return original, pkgerrors.New(pkgerrors.CodeAlreadyCheckedIn, "ticket already checked in").
		WithDetails(map[string]any{
			"gate_id":       original.GateID,
			"checked_in_at": original.CheckedInAt,
		})
}

func (s *service) LookupByCode(ctx context.Context, rawCode string) (uuid.UUID, error) {
	ticketID, err := s.codec.Decode(rawCode)
	if err != nil {
		s.metrics.IncCheckIn("invalid_code")
		return uuid.Nil, err
	}
	if _, err := s.repo.FindTicket(ctx, ticketID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	return ticketID, nil
}

func (s *service) CheckInByCode(ctx context.Context, rawCode, gateID, operatorRef string) (*models.CheckInRecord, error) {
	ticketID, err := s.codec.Decode(rawCode)
	if err != nil {
		s.metrics.IncCheckIn("invalid_code")
		return nil, err
	}
	return s.CheckIn(ctx, ticketID, gateID, operatorRef)
}
