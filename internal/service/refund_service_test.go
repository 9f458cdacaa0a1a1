package service

import (
	"context"
	"testing"

	"contactpay/internal/model"
	"contactpay/internal/repository"

	"github.com/stretchr/testify/require"
)

func TestRefundCompletedPayment(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	payment := seedProcessingPayment(t, db, "PMT-F1")
	payment.Status = model.PaymentStatusCompleted
	require.NoError(t, db.Save(payment).Error)

	svc := NewRefundService(db, nil, cfg)

	resp, err := svc.Refund(context.Background(), &RefundRequest{Reference: "PMT-F1", Reason: "owner removed listing"})
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusRefunded, resp.Status)
	require.Equal(t, int64(1000), resp.Amount)

	stored := paymentByReference(t, db, "PMT-F1")
	require.Equal(t, model.PaymentStatusRefunded, stored.Status)
	require.Equal(t, "owner removed listing", stored.RefundReason)

	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("message_key = ?", "PMT-F1").Count(&outboxCount).Error)
	require.Equal(t, int64(1), outboxCount)
}

func TestRefundIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	payment := seedProcessingPayment(t, db, "PMT-F2")
	payment.Status = model.PaymentStatusCompleted
	require.NoError(t, db.Save(payment).Error)

	svc := NewRefundService(db, nil, cfg)

	_, err := svc.Refund(context.Background(), &RefundRequest{Reference: "PMT-F2"})
	require.NoError(t, err)

	resp, err := svc.Refund(context.Background(), &RefundRequest{Reference: "PMT-F2"})
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusRefunded, resp.Status)

	// One announcement, not two.
	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("message_key = ?", "PMT-F2").Count(&outboxCount).Error)
	require.Equal(t, int64(1), outboxCount)
}

func TestRefundRejectsNonCompleted(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-F3")

	svc := NewRefundService(db, nil, cfg)

	_, err := svc.Refund(context.Background(), &RefundRequest{Reference: "PMT-F3"})
	require.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestRefundUnknownReference(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()

	svc := NewRefundService(db, nil, cfg)

	_, err := svc.Refund(context.Background(), &RefundRequest{Reference: "PMT-NOPE"})
	require.ErrorIs(t, err, repository.ErrPaymentNotFound)
}
