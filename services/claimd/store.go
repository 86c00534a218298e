package claimd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists claim codes.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened and migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new claim record.
func (s *Store) Create(ctx context.Context, claim *ClaimCode) error {
	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(claim).Error; err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

// FindByHash loads the claim whose code digest is hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (*ClaimCode, error) {
	var claim ClaimCode
	err := s.db.WithContext(ctx).Where("code_hash = ?", hash).First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load claim: %w", err)
	}
	return &claim, nil
}

// Consume marks the claim used and runs settle inside the same database
// transaction. The used flag is only flipped while it is still false, so at
// most one caller reaches settle; if settle fails the flag is rolled back.
// A nil settle only marks the claim. A non-empty wallet returned by settle
// replaces claimedBy.
func (s *Store) Consume(ctx context.Context, id uuid.UUID, claimedBy string, at time.Time, settle func() (string, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ClaimCode{}).
			Where("id = ? AND is_used = ?", id, false).
			Updates(map[string]any{
				"is_used":    true,
				"claimed_by": claimedBy,
				"claimed_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("mark claim used: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrClaimUsed
		}
		if settle == nil {
			return nil
		}
		paid, err := settle()
		if err != nil {
			return err
		}
		if paid == "" || paid == claimedBy {
			return nil
		}
		if err := tx.Model(&ClaimCode{}).Where("id = ?", id).Update("claimed_by", paid).Error; err != nil {
			return fmt.Errorf("record claim payee: %w", err)
		}
		return nil
	})
}
