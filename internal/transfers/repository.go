package transfers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
)

// Repository manages ticket transfer persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	// ReassignHolder moves the ticket to a new holder with a guard on the
	// current holder and an admissible status. Zero rows affected means a
	// concurrent transfer, check-in, or refund won.
	ReassignHolder(ctx context.Context, ticketID, fromUserID, toUserID uuid.UUID) (int64, error)
	CreateTransfer(ctx context.Context, transfer *models.TicketTransfer) (*models.TicketTransfer, error)
	ListForTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketTransfer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transfers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Where("id = ?", ticketID).
		First(&ticket).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) ReassignHolder(ctx context.Context, ticketID, fromUserID, toUserID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND holder_user_id = ? AND status IN ?",
			ticketID, fromUserID,
			[]enums.TicketStatus{enums.TicketStatusIssued, enums.TicketStatusTransferred}).
		Updates(map[string]any{
			"holder_user_id": toUserID,
			"status":         enums.TicketStatusTransferred,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateTransfer(ctx context.Context, transfer *models.TicketTransfer) (*models.TicketTransfer, error) {
	if err := r.db.WithContext(ctx).Create(transfer).Error; err != nil {
		return nil, err
	}
	return transfer, nil
}

func (r *repository) ListForTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketTransfer, error) {
	var rows []models.TicketTransfer
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
