package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/internal/inventory"
	"github.com/campustix/campustix-backend/internal/ledger"
	"github.com/campustix/campustix-backend/pkg/db"
	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/gateway"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/outbox"
	"github.com/campustix/campustix-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// railRefunder is the slice of the payment rail client refund settlement
// needs. May be nil; Complete then settles bookkeeping only.
type railRefunder interface {
	Refund(ctx context.Context, reference string, amountCents int, idempotencyKey string) (*gateway.Charge, error)
}

// Service runs the refund workflow: request against a completed
// transaction, an organizer decision, then asynchronous settlement.
// Approval is the moment ticket and inventory state roll back; Complete
// only moves the money.
type Service interface {
	RequestRefund(ctx context.Context, transactionID, userID uuid.UUID, reason string) (*models.RefundRequest, error)
	Decide(ctx context.Context, refundRequestID uuid.UUID, approve bool) (*models.RefundRequest, error)
	Complete(ctx context.Context, refundRequestID uuid.UUID) (*models.RefundRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	ListUserRequests(ctx context.Context, userID uuid.UUID, limit int) ([]models.RefundRequest, error)
}

type service struct {
	repo      Repository
	ledger    ledger.Repository
	tx        txRunner
	inventory inventory.Service
	outbox    outboxPublisher
	rail      railRefunder
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the refund workflow service.
func NewService(repo Repository, ledgerRepo ledger.Repository, tx txRunner, inv inventory.Service, ob outboxPublisher, rail railRefunder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		ledger:    ledgerRepo,
		tx:        tx,
		inventory: inv,
		outbox:    ob,
		rail:      rail,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) RequestRefund(ctx context.Context, transactionID, userID uuid.UUID, reason string) (*models.RefundRequest, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}

	txn, err := s.ledger.FindTransaction(ctx, transactionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "transaction belongs to another user")
	}
	if txn.Status != enums.TransactionStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible,
			fmt.Sprintf("only completed transactions are refundable, transaction is %s", txn.Status))
	}

	tickets, err := s.ledger.FindTicketsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tickets")
	}
	for _, ticket := range tickets {
		if ticket.Status == enums.TicketStatusCheckedIn {
			return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "a ticket on this transaction was already used").
				WithDetails(map[string]any{"ticket_id": ticket.ID})
		}
	}

	open, err := s.repo.ExistsOpenForTransaction(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open refund requests")
	}
	if open {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "a refund request is already in flight for this transaction")
	}

	request, err := s.repo.CreateRequest(ctx, &models.RefundRequest{
		ID:            uuid.New(),
		TransactionID: transactionID,
		UserID:        userID,
		Reason:        reason,
		Status:        enums.RefundStatusPending,
		AmountCents:   txn.AmountCents,
	})
	if err != nil {
		// The partial unique index closes the race between two requests
		// passing the ExistsOpen check at once.
		if db.IsUniqueViolation(err, "ux_refund_requests_open_transaction") {
			return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "a refund request is already in flight for this transaction")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_request_id": request.ID.String(),
		"transaction_id":    transactionID.String(),
	})
	s.logg.Info(logCtx, "refund requested")
	return request, nil
}

func (s *service) Decide(ctx context.Context, refundRequestID uuid.UUID, approve bool) (*models.RefundRequest, error) {
	if refundRequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund request id required")
	}
	request, err := s.getRequest(ctx, refundRequestID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.RefundStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("refund request already decided, status %s", request.Status))
	}

	if !approve {
		return s.reject(ctx, request)
	}
	return s.approve(ctx, request)
}

func (s *service) reject(ctx context.Context, request *models.RefundRequest) (*models.RefundRequest, error) {
	decidedAt := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		won, err := repo.TransitionStatus(ctx, request.ID, enums.RefundStatusPending, enums.RefundStatusRejected,
			map[string]any{"decided_at": decidedAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject refund request")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund request was decided concurrently")
		}
		request.Status = enums.RefundStatusRejected
		request.DecidedAt = &decidedAt
		return s.outbox.Emit(ctx, tx, s.decidedEvent(request))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// approve rolls back ticket and inventory state in one transaction. The
// checked-in recheck runs inside the same transaction because a gate scan
// may have landed between request and decision.
func (s *service) approve(ctx context.Context, request *models.RefundRequest) (*models.RefundRequest, error) {
	decidedAt := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledgerRepo := s.ledger.WithTx(tx)

		txn, err := ledgerRepo.FindTransaction(ctx, request.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}

		tickets, err := ledgerRepo.FindTicketsByTransaction(ctx, request.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tickets")
		}
		for _, ticket := range tickets {
			if ticket.Status == enums.TicketStatusCheckedIn {
				return pkgerrors.New(pkgerrors.CodeNotEligible, "a ticket on this transaction was already used").
					WithDetails(map[string]any{"ticket_id": ticket.ID})
			}
		}

		won, err := repo.TransitionStatus(ctx, request.ID, enums.RefundStatusPending, enums.RefundStatusApproved,
			map[string]any{"decided_at": decidedAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve refund request")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund request was decided concurrently")
		}

		won, err = ledgerRepo.TransitionStatus(ctx, txn.ID, enums.TransactionStatusCompleted, enums.TransactionStatusRefunded, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund transaction")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"transaction left the completed state before approval")
		}

		voided, err := ledgerRepo.UpdateTicketStatusByTransaction(ctx, txn.ID,
			[]enums.TicketStatus{enums.TicketStatusIssued, enums.TicketStatusTransferred},
			enums.TicketStatusRefunded)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void tickets")
		}

		if err := s.inventory.Release(ctx, tx, txn.TierID, int(voided)); err != nil {
			return err
		}

		request.Status = enums.RefundStatusApproved
		request.DecidedAt = &decidedAt
		return s.outbox.Emit(ctx, tx, s.decidedEvent(request))
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_request_id": request.ID.String(),
		"transaction_id":    request.TransactionID.String(),
	})
	s.logg.Info(logCtx, "refund approved")
	return request, nil
}

func (s *service) Complete(ctx context.Context, refundRequestID uuid.UUID) (*models.RefundRequest, error) {
	if refundRequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund request id required")
	}
	request, err := s.getRequest(ctx, refundRequestID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.RefundStatusApproved {
		if request.Status == enums.RefundStatusCompleted {
			return request, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("only approved refunds can settle, status %s", request.Status))
	}

	txn, err := s.ledger.FindTransaction(ctx, request.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}

	// The request ID keys the rail call, so a retry after a failed
	// settlement write cannot move the money twice.
	if s.rail != nil && txn.GatewayReference != nil {
		if _, err := s.rail.Refund(ctx, *txn.GatewayReference, request.AmountCents, request.ID.String()); err != nil {
			return nil, err
		}
	}

	settledAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		won, err := repo.TransitionStatus(ctx, request.ID, enums.RefundStatusApproved, enums.RefundStatusCompleted,
			map[string]any{"settled_at": settledAt})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle refund request")
		}
		if !won {
			// The money already moved; a concurrent settle is benign.
			return nil
		}
		request.Status = enums.RefundStatusCompleted
		request.SettledAt = &settledAt
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundSettled,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   request.ID,
			Version:       1,
			Data: payloads.RefundSettledEvent{
				RefundRequestID:  request.ID,
				TransactionID:    request.TransactionID,
				TierID:           txn.TierID,
				QuantityRestored: txn.Quantity,
				AmountCents:      request.AmountCents,
				SettledAt:        settledAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_request_id": request.ID.String(),
		"amount_cents":      request.AmountCents,
	})
	s.logg.Info(logCtx, "refund settled")
	return request, nil
}

func (s *service) GetRequest(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund request id required")
	}
	return s.getRequest(ctx, id)
}

func (s *service) ListUserRequests(ctx context.Context, userID uuid.UUID, limit int) ([]models.RefundRequest, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.repo.ListUserRequests(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	return rows, nil
}

func (s *service) getRequest(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	request, err := s.repo.FindRequest(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
	}
	return request, nil
}

func (s *service) decidedEvent(request *models.RefundRequest) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventRefundDecided,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   request.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: request.UserID},
		Data: payloads.RefundDecidedEvent{
			RefundRequestID: request.ID,
			TransactionID:   request.TransactionID,
			UserID:          request.UserID,
			Status:          request.Status,
			AmountCents:     request.AmountCents,
		},
	}
}
