package checkin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
	"github.com/campustix/campustix-backend/pkg/enums"
)

// Repository manages gate admission persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	FindRecordByTicket(ctx context.Context, ticketID uuid.UUID) (*models.CheckInRecord, error)
	// ConsumeTicket flips an admissible ticket to checked_in. Zero rows
	// affected means another scan won or the ticket is not admissible.
	ConsumeTicket(ctx context.Context, ticketID uuid.UUID) (int64, error)
	CreateRecord(ctx context.Context, record *models.CheckInRecord) (*models.CheckInRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a check-in repository bound to the provided database.
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

func (r *repository) FindRecordByTicket(ctx context.Context, ticketID uuid.UUID) (*models.CheckInRecord, error) {
	var record models.CheckInRecord
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ConsumeTicket(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status IN ?", ticketID,
			[]enums.TicketStatus{enums.TicketStatusIssued, enums.TicketStatusTransferred}).
		Updates(map[string]any{
			"status":     enums.TicketStatusCheckedIn,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateRecord(ctx context.Context, record *models.CheckInRecord) (*models.CheckInRecord, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}
