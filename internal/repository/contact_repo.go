package repository

import (
	"context"
	"errors"

	"contactpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrContactNotFound = errors.New("contact not found")

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// CreateIfAbsent inserts the contact unless one already exists for the
// same (user, listing) pair. The unique constraint is the idempotency
// backstop under the payment-status CAS: a duplicate is not an error here,
// the caller gets the surviving row either way. The second return value
// reports whether this call actually inserted.
func (r *ContactRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, contact *model.Contact) (*model.Contact, bool, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "listing_id"}},
			DoNothing: true,
		}).
		Create(contact)
	if result.Error != nil {
		return nil, false, result.Error
	}

	if result.RowsAffected > 0 {
		return contact, true, nil
	}

	existing, err := r.getByUserAndListing(ctx, tx, contact.UserID, contact.ListingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ContactRepository) getByUserAndListing(ctx context.Context, tx *gorm.DB, userID, listingID int64) (*model.Contact, error) {
	var contact model.Contact
	err := tx.WithContext(ctx).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

func (r *ContactRepository) GetByUserAndListing(ctx context.Context, userID, listingID int64) (*model.Contact, error) {
	return r.getByUserAndListing(ctx, r.db, userID, listingID)
}

func (r *ContactRepository) GetByID(ctx context.Context, id int64) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

func (r *ContactRepository) GetByPaymentReference(ctx context.Context, reference string) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

func (r *ContactRepository) CountAll(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Contact{}).Count(&total).Error
	return total, err
}

func (r *ContactRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Contact, int64, error) {
	var contacts []*model.Contact
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Contact{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&contacts).Error

	return contacts, total, err
}
