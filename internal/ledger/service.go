package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/internal/inventory"
	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/gateway"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/metrics"
	"github.com/campustix/campustix-backend/pkg/outbox"
	"github.com/campustix/campustix-backend/pkg/outbox/payloads"
)

// maxQuantityPerOrder caps a single purchase.
const maxQuantityPerOrder = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// railCharger is the slice of the payment rail client the ledger needs.
type railCharger interface {
	Charge(ctx context.Context, params gateway.ChargeParams) (*gateway.Charge, error)
}

// BeginInput starts a purchase attempt.
type BeginInput struct {
	UserID        uuid.UUID
	TierID        uuid.UUID
	Quantity      int
	PaymentMethod enums.PaymentMethod
}

// ConfirmInput settles a pending transaction. Exactly one of TransactionID
// or GatewayReference must identify the row.
type ConfirmInput struct {
	TransactionID    uuid.UUID
	GatewayReference string
}

// FailInput voids a pending transaction.
type FailInput struct {
	TransactionID    uuid.UUID
	GatewayReference string
	Reason           string
}

// ConfirmResult carries the settled transaction and its tickets.
type ConfirmResult struct {
	Transaction *models.PaymentTransaction
	Tickets     []models.Ticket
}

// Service owns the transaction state machine: pending is the only state
// that moves, completed|failed|refunded are terminal except for the single
// completed -> refunded transition driven by the refund workflow.
type Service interface {
	Begin(ctx context.Context, input BeginInput) (*models.PaymentTransaction, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	Fail(ctx context.Context, input FailInput) (*models.PaymentTransaction, error)
	Expire(ctx context.Context, transactionID uuid.UUID) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
	ListUserTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentTransaction, error)
	TicketsForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Ticket, error)
	ListUserTickets(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventory.Service
	outbox    outboxPublisher
	rail      railCharger
	logg      *logger.Logger
	metrics   *metrics.TicketingMetrics
	now       func() time.Time
}

// NewService builds the ledger service with the required dependencies. The
// rail charger may be nil when purchases are settled exclusively by webhook.
func NewService(repo Repository, tx txRunner, inv inventory.Service, ob outboxPublisher, rail railCharger, logg *logger.Logger, m *metrics.TicketingMetrics) (Service, error) {
	if repo == nil {
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
		tx:        tx,
		inventory: inv,
		outbox:    ob,
		rail:      rail,
		logg:      logg,
		metrics:   m,
		now:       time.Now,
	}, nil
}

func (s *service) Begin(ctx context.Context, input BeginInput) (*models.PaymentTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.TierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	}
	if input.Quantity <= 0 || input.Quantity > maxQuantityPerOrder {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity must be between 1 and %d", maxQuantityPerOrder))
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}

	var txn *models.PaymentTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tier, err := s.inventory.Reserve(ctx, tx, input.TierID, input.Quantity)
		if err != nil {
			return err
		}

		created, err := s.repo.WithTx(tx).CreateTransaction(ctx, &models.PaymentTransaction{
			ID:            uuid.New(),
			UserID:        input.UserID,
			EventID:       tier.EventID,
			TierID:        tier.ID,
			Quantity:      input.Quantity,
			AmountCents:   tier.PriceCents * input.Quantity,
			Status:        enums.TransactionStatusPending,
			PaymentMethod: input.PaymentMethod,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"tier_id":        txn.TierID.String(),
		"quantity":       txn.Quantity,
		"amount_cents":   txn.AmountCents,
	})
	s.logg.Info(logCtx, "transaction opened")

	if s.rail == nil {
		return txn, nil
	}
	return s.chargeRail(ctx, txn)
}

// chargeRail initiates payment after the pending row is committed. A rail
// decline fails the transaction immediately; a transport error leaves it
// pending for the sweeper to reconcile.
func (s *service) chargeRail(ctx context.Context, txn *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	charge, err := s.rail.Charge(ctx, gateway.ChargeParams{
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		AmountCents:   txn.AmountCents,
		Method:        txn.PaymentMethod.String(),
		Description:   fmt.Sprintf("%d ticket(s)", txn.Quantity),
	})
	if err != nil {
		s.logg.Error(ctx, "rail charge failed, leaving transaction pending", err)
		return txn, nil
	}

	if charge.Reference != "" {
		if err := s.repo.SetGatewayReference(ctx, txn.ID, charge.Reference); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway reference")
		}
		ref := charge.Reference
		txn.GatewayReference = &ref
	}

	switch charge.Status {
	case gateway.ChargeStatusSucceeded:
		result, err := s.Confirm(ctx, ConfirmInput{TransactionID: txn.ID})
		if err != nil {
			return nil, err
		}
		return result.Transaction, nil
	case gateway.ChargeStatusFailed:
		reason := charge.Reason
		if reason == "" {
			reason = "payment declined"
		}
		if _, err := s.Fail(ctx, FailInput{TransactionID: txn.ID, Reason: reason}); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment declined").
			WithDetails(map[string]any{"transaction_id": txn.ID, "reason": reason})
	default:
		return txn, nil
	}
}

func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	txn, err := s.resolveTransaction(ctx, input.TransactionID, input.GatewayReference)
	if err != nil {
		return nil, err
	}

	var (
		result *ConfirmResult
		issued bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]any{}
		if input.GatewayReference != "" && txn.GatewayReference == nil {
			updates["gateway_reference"] = input.GatewayReference
		}
		won, err := repo.TransitionStatus(ctx, txn.ID, enums.TransactionStatusPending, enums.TransactionStatusCompleted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
		}
		if !won {
			current, err := repo.FindTransaction(ctx, txn.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
			}
			if current.Status == enums.TransactionStatusCompleted {
				tickets, err := repo.FindTicketsByTransaction(ctx, txn.ID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tickets")
				}
				result = &ConfirmResult{Transaction: current, Tickets: tickets}
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot confirm transaction in status %s", current.Status))
		}

		issuedAt := s.now()
		tickets := make([]models.Ticket, 0, txn.Quantity)
		for i := 0; i < txn.Quantity; i++ {
			tickets = append(tickets, models.Ticket{
				ID:            uuid.New(),
				TransactionID: txn.ID,
				TierID:        txn.TierID,
				HolderUserID:  txn.UserID,
				Status:        enums.TicketStatusIssued,
				IssuedAt:      issuedAt,
			})
		}
		if err := repo.CreateTickets(ctx, tickets); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue tickets")
		}

		ticketIDs := make([]uuid.UUID, len(tickets))
		for i, ticket := range tickets {
			ticketIDs[i] = ticket.ID
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventTransactionCompleted,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: txn.UserID},
			Data: payloads.TransactionCompletedEvent{
				TransactionID: txn.ID,
				UserID:        txn.UserID,
				TierID:        txn.TierID,
				Quantity:      txn.Quantity,
				AmountCents:   txn.AmountCents,
				TicketIDs:     ticketIDs,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusCompleted
		result = &ConfirmResult{Transaction: txn, Tickets: tickets}
		issued = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if issued {
		s.metrics.IncTransaction(enums.TransactionStatusCompleted.String())
		s.metrics.AddTicketsIssued(len(result.Tickets))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id": txn.ID.String(),
			"tickets_issued": len(result.Tickets),
		})
		s.logg.Info(logCtx, "transaction confirmed")
	}
	return result, nil
}

func (s *service) Fail(ctx context.Context, input FailInput) (*models.PaymentTransaction, error) {
	if input.TransactionID == uuid.Nil && input.GatewayReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id or gateway reference required")
	}

	txn, err := s.resolveTransaction(ctx, input.TransactionID, input.GatewayReference)
	if err != nil {
		return nil, err
	}

	var failed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]any{}
		if input.Reason != "" {
			updates["failure_reason"] = input.Reason
		}
		won, err := repo.TransitionStatus(ctx, txn.ID, enums.TransactionStatusPending, enums.TransactionStatusFailed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail transaction")
		}
		if !won {
			current, err := repo.FindTransaction(ctx, txn.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
			}
			if current.Status == enums.TransactionStatusFailed {
				txn = current
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot fail transaction in status %s", current.Status))
		}

		if err := s.inventory.Release(ctx, tx, txn.TierID, txn.Quantity); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusFailed
		failed = true
		event := outbox.DomainEvent{
			EventType:     enums.EventTransactionFailed,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Version:       1,
			Data: payloads.TransactionFailedEvent{
				TransactionID: txn.ID,
				UserID:        txn.UserID,
				TierID:        txn.TierID,
				Quantity:      txn.Quantity,
				Reason:        input.Reason,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	if failed {
		s.metrics.IncTransaction(enums.TransactionStatusFailed.String())
	}
	return txn, nil
}

// Expire reaps one overdue pending transaction: pending -> failed, stock
// returned, a transaction_expired event emitted at most once.
func (s *service) Expire(ctx context.Context, transactionID uuid.UUID) error {
	txn, err := s.resolveTransaction(ctx, transactionID, "")
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		won, err := repo.TransitionStatus(ctx, txn.ID, enums.TransactionStatusPending, enums.TransactionStatusFailed,
			map[string]any{"failure_reason": "pending ttl exceeded"})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire transaction")
		}
		if !won {
			// Raced with a confirm, fail, or another sweeper pass.
			return nil
		}

		if err := s.inventory.Release(ctx, tx, txn.TierID, txn.Quantity); err != nil {
			return err
		}

		expiredAt := s.now()
		event := outbox.DomainEvent{
			EventType:     enums.EventTransactionExpired,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Version:       1,
			Data: payloads.TransactionExpiredEvent{
				TransactionID: txn.ID,
				TierID:        txn.TierID,
				Quantity:      txn.Quantity,
				ExpiredAt:     expiredAt,
				PendingFor:    expiredAt.Sub(txn.CreatedAt).String(),
			},
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}

		s.metrics.IncSweepExpired()
		return nil
	})
	return err
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	return s.resolveTransaction(ctx, id, "")
}

func (s *service) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.repo.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending transactions")
	}
	return rows, nil
}

func (s *service) ListUserTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentTransaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.repo.ListUserTransactions(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user transactions")
	}
	return rows, nil
}

func (s *service) TicketsForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Ticket, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	tickets, err := s.repo.FindTicketsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tickets")
	}
	return tickets, nil
}

func (s *service) ListUserTickets(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	tickets, err := s.repo.FindTicketsByHolder(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user tickets")
	}
	return tickets, nil
}

func (s *service) resolveTransaction(ctx context.Context, id uuid.UUID, gatewayReference string) (*models.PaymentTransaction, error) {
	switch {
	case id != uuid.Nil:
		txn, err := s.repo.FindTransaction(ctx, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		return txn, nil
	case gatewayReference != "":
		txn, err := s.repo.FindTransactionByGatewayReference(ctx, gatewayReference)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found for reference")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction by reference")
		}
		return txn, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id or gateway reference required")
	}
}
