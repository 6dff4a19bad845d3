package checkin

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campustix/campustix-backend/pkg/db/models"
)

// OperatorRepository resolves gate operator credentials for the scan surface.
type OperatorRepository interface {
	FindOperator(ctx context.Context, id uuid.UUID) (*models.GateOperator, error)
}

type operatorRepository struct {
	db *gorm.DB
}

// NewOperatorRepository returns an operator repository bound to the provided database.
func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) FindOperator(ctx context.Context, id uuid.UUID) (*models.GateOperator, error) {
	var operator models.GateOperator
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&operator).Error
	if err != nil {
		return nil, err
	}
	return &operator, nil
}
