package repository

import (
	"context"
	"errors"
	"time"

	"contactpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// PaymentRepository owns every write to the payment table. All status
// changes go through conditional updates (UPDATE ... WHERE status = ?);
// RowsAffected is the arbiter of who won a race. No in-process lock is
// involved, so the guarantees hold across replicas.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// MarkProcessing moves PENDING to PROCESSING and records the gateway's
// transaction id. Calling it again with the same external id is a no-op
// success; with a different id it is an invalid transition.
func (r *PaymentRepository) MarkProcessing(ctx context.Context, reference, externalTxnID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("reference = ? AND status = ?", reference, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":          model.PaymentStatusProcessing,
			"external_txn_id": externalTxnID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	payment, err := r.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if payment.Status == model.PaymentStatusProcessing && payment.ExternalTxnID == externalTxnID {
		return nil
	}
	return ErrInvalidTransition
}

// CompleteCAS is the only statement in the codebase that can produce a
// COMPLETED payment. The status guard makes it a compare-and-set: of any
// number of concurrent callers, exactly one observes RowsAffected == 1.
// PENDING is accepted alongside PROCESSING because some gateways settle
// before the initiation response is even acknowledged.
func (r *PaymentRepository) CompleteCAS(ctx context.Context, tx *gorm.DB, reference string, completedAt time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("reference = ? AND status IN ?", reference,
			[]string{model.PaymentStatusPending, model.PaymentStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       model.PaymentStatusCompleted,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// terminalCAS moves a non-settled payment into one terminal state. No-op
// success if the payment already sits in that exact state; an attempt to
// downgrade a COMPLETED payment is an invalid transition.
func (r *PaymentRepository) terminalCAS(ctx context.Context, reference, target string, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": target}
	for k, v := range extra {
		updates[k] = v
	}

	fromStatuses := make([]string, 0, 2)
	for from, targets := range model.ValidStatusTransitions {
		for _, t := range targets {
			if t == target && from != model.PaymentStatusCompleted {
				fromStatuses = append(fromStatuses, from)
			}
		}
	}

	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("reference = ? AND status IN ?", reference, fromStatuses).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	payment, err := r.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if payment.Status == target {
		return nil
	}
	return ErrInvalidTransition
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, reference, code, reason string) error {
	return r.terminalCAS(ctx, reference, model.PaymentStatusFailed, map[string]interface{}{
		"fail_code":   code,
		"fail_reason": reason,
	})
}

func (r *PaymentRepository) MarkCancelled(ctx context.Context, reference string) error {
	return r.terminalCAS(ctx, reference, model.PaymentStatusCancelled, nil)
}

func (r *PaymentRepository) MarkExpired(ctx context.Context, reference string) error {
	return r.terminalCAS(ctx, reference, model.PaymentStatusExpired, nil)
}

// MarkRefunded is reachable only from COMPLETED.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, tx *gorm.DB, reference, reason string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("reference = ? AND status = ?", reference, model.PaymentStatusCompleted).
		Updates(map[string]interface{}{
			"status":        model.PaymentStatusRefunded,
			"refund_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SetContactID links the downstream contact. Guarded on contact_id IS NULL
// so the link is written at most once.
func (r *PaymentRepository) SetContactID(ctx context.Context, tx *gorm.DB, reference string, contactID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("reference = ? AND contact_id IS NULL", reference).
		Update("contact_id", contactID).Error
}

// RecordWebhookDelivery bumps the delivery counter and refreshes the
// webhook metadata. Observability only; runs on every delivery regardless
// of what the idempotency logic decides.
func (r *PaymentRepository) RecordWebhookDelivery(ctx context.Context, reference, payloadHash string, signatureValid bool, receivedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("reference = ?", reference).
		Updates(map[string]interface{}{
			"webhook_received":        true,
			"webhook_received_at":     receivedAt,
			"webhook_signature_valid": signatureValid,
			"webhook_payload_hash":    payloadHash,
			"webhook_delivery_count":  gorm.Expr("webhook_delivery_count + 1"),
		}).Error
}

// GetStalledProcessing returns payments stuck in PROCESSING since before
// the cutoff; the sweep job reconciles them against the gateway.
func (r *PaymentRepository) GetStalledProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.PaymentStatusProcessing, before).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetExpiredPending(ctx context.Context, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.PaymentStatusPending, time.Now()).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// GetUnlinkedCompleted finds COMPLETED rows whose contact link is missing.
// The commit transaction makes this state unreachable through normal
// operation; the sweep repairs anything that slips through anyway.
func (r *PaymentRepository) GetUnlinkedCompleted(ctx context.Context, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND contact_id IS NULL", model.PaymentStatusCompleted).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Payment, int64, error) {
	var payments []*model.Payment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Payment{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payments).Error

	return payments, total, err
}
