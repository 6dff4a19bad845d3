package models

import (
	"time"

	"github.com/google/uuid"
)

// GateOperator is a gate-scanner identity; APIKeyHash holds an argon2id
// hash of the operator's key.
type GateOperator struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Label      string     `gorm:"column:label;not null"`
	APIKeyHash string     `gorm:"column:api_key_hash;not null"`
	Active     bool       `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	RevokedAt  *time.Time `gorm:"column:revoked_at"`
}
