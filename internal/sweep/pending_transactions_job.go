package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/campustix/campustix-backend/internal/ledger"
	"github.com/campustix/campustix-backend/pkg/db/models"
	pkgerrors "github.com/campustix/campustix-backend/pkg/errors"
	"github.com/campustix/campustix-backend/pkg/gateway"
	"github.com/campustix/campustix-backend/pkg/logger"
)

const (
	defaultPendingTTL = 15 * time.Minute
	defaultBatchSize  = 100
)

// transactionReaper is the slice of the ledger the sweep needs.
type transactionReaper interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
	Confirm(ctx context.Context, input ledger.ConfirmInput) (*ledger.ConfirmResult, error)
	Fail(ctx context.Context, input ledger.FailInput) (*models.PaymentTransaction, error)
	Expire(ctx context.Context, transactionID uuid.UUID) error
}

// statusChecker asks the payment rail for the real outcome of a charge.
type statusChecker interface {
	CheckStatus(ctx context.Context, reference string) (*gateway.Charge, error)
}

// PendingTransactionsJobParams configure the pending TTL sweep.
type PendingTransactionsJobParams struct {
	Logger     *logger.Logger
	Ledger     transactionReaper
	Gateway    statusChecker
	PendingTTL time.Duration
	BatchSize  int
}

// NewPendingTransactionsJob builds the job that reaps pending
// transactions past the TTL. A transaction with a gateway reference is
// reconciled against the rail first: a payment that actually went
// through is confirmed, not expired, so money taken never strands
// without tickets.
func NewPendingTransactionsJob(params PendingTransactionsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &pendingTransactionsJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		gateway: params.Gateway,
		ttl:     ttl,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type pendingTransactionsJob struct {
	logg    *logger.Logger
	ledger  transactionReaper
	gateway statusChecker
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *pendingTransactionsJob) Name() string { return "pending-transactions" }

func (j *pendingTransactionsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	overdue, err := j.ledger.ListPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query overdue transactions: %w", err)
	}

	var errs []error
	reaped := 0
	for _, txn := range overdue {
		if err := j.reconcile(ctx, txn); err != nil {
			// A state conflict means a confirm or fail won the race since
			// the listing; the row no longer needs sweeping.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				continue
			}
			errs = append(errs, fmt.Errorf("transaction %s: %w", txn.ID, err))
			continue
		}
		reaped++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue": len(overdue),
		"reaped":  reaped,
	})
	j.logg.Info(logCtx, "pending transaction sweep complete")
	return multierr.Combine(errs...)
}

func (j *pendingTransactionsJob) reconcile(ctx context.Context, txn models.PaymentTransaction) error {
	if j.gateway == nil || txn.GatewayReference == nil {
		return j.ledger.Expire(ctx, txn.ID)
	}

	charge, err := j.gateway.CheckStatus(ctx, *txn.GatewayReference)
	if err != nil {
		// Unknown outcome. Leave the row pending; the next cycle retries.
		logCtx := j.logg.WithField(ctx, "transaction_id", txn.ID.String())
		j.logg.Warn(logCtx, "gateway status check failed, deferring sweep")
		return nil
	}

	switch charge.Status {
	case gateway.ChargeStatusSucceeded:
		_, err := j.ledger.Confirm(ctx, ledger.ConfirmInput{TransactionID: txn.ID})
		return err
	case gateway.ChargeStatusFailed:
		reason := charge.Reason
		if reason == "" {
			reason = "gateway reported failure"
		}
		_, err := j.ledger.Fail(ctx, ledger.FailInput{TransactionID: txn.ID, Reason: reason})
		return err
	default:
		return j.ledger.Expire(ctx, txn.ID)
	}
}
