package repository

import (
	"context"

	"contactpay/internal/model"

	"gorm.io/gorm"
)

// WebhookRepository records inbound deliveries. Append only.
type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, delivery *model.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *WebhookRepository) CountByReference(ctx context.Context, reference string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.WebhookDelivery{}).
		Where("reference = ?", reference).
		Count(&total).Error
	return total, err
}

func (r *WebhookRepository) ListByReference(ctx context.Context, reference string, limit int) ([]*model.WebhookDelivery, error) {
	var deliveries []*model.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at DESC").
		Limit(limit).
		Find(&deliveries).Error
	return deliveries, err
}
