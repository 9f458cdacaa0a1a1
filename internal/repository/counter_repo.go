package repository

import (
	"context"
	"errors"

	"contactpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrListingNotFound = errors.New("listing not found")

// CounterRepository is the collaborator boundary to the listing and user
// subsystems: denormalized counters, incremented best-effort after a
// commit. Errors are reported to the caller for logging, never propagated
// into the payment outcome.
type CounterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

func (r *CounterRepository) IncrementListingContacts(ctx context.Context, listingID int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", listingID).
		Update("contact_request_count", gorm.Expr("contact_request_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *CounterRepository) IncrementUserSpend(ctx context.Context, userID, amount int64) error {
	// Profile row may not exist yet for a first-time payer.
	profile := &model.UserProfile{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(profile).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&model.UserProfile{}).
		Where("user_id = ?", userID).
		Update("total_spend", gorm.Expr("total_spend + ?", amount)).Error
}

func (r *CounterRepository) GetListing(ctx context.Context, listingID int64) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).Where("id = ?", listingID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}
