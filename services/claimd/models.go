package claimd

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimCode is an issued, single-use payout authorisation. The plaintext
// code is never persisted; CodeHash holds its blake3 digest.
type ClaimCode struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CodeHash     string    `gorm:"size:64;uniqueIndex;not null"`
	VaultAddress string    `gorm:"size:64;index;not null"`
	Amount       uint64    `gorm:"not null"`
	Asset        string    `gorm:"size:96;not null"`
	IsUsed       bool      `gorm:"index;not null;default:false"`
	CreatedAt    time.Time
	ExpiresAt    *time.Time `gorm:"index"`
	ClaimedBy    string     `gorm:"size:96"`
	ClaimedAt    *time.Time
}

// Expired reports whether the code has an expiry at or before now.
func (c *ClaimCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ClaimCode{})
}
