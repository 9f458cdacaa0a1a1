package service

import (
	"context"
	"testing"

	"contactpay/internal/gateway"
	"contactpay/internal/model"
	"contactpay/internal/repository"

	"github.com/stretchr/testify/require"
)

func createRequest(listingID, amount int64) *CreatePaymentRequest {
	req := &CreatePaymentRequest{
		UserID:    1,
		ListingID: listingID,
		Amount:    amount,
		Currency:  "XOF",
	}
	req.Customer.Name = "Awa Diop"
	req.Customer.Phone = "+221770000000"
	return req
}

func TestCreatePaymentHappyPath(t *testing.T) {
	// Scenario A: create goes PENDING, the gateway accepts, and the service
	// hands back a PROCESSING payment with a checkout URL.
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)

	stub := &stubGateway{}
	svc := NewPaymentService(db, cfg, stub)

	resp, err := svc.CreatePayment(context.Background(), createRequest(10, 1000))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Reference)
	require.Equal(t, model.PaymentStatusProcessing, resp.Status)
	require.Equal(t, "https://checkout.example.com/t/stub", resp.PaymentURL)

	payment := paymentByReference(t, db, resp.Reference)
	require.Equal(t, model.PaymentStatusProcessing, payment.Status)
	require.Equal(t, "TXN-"+resp.Reference, payment.ExternalTxnID)
	require.False(t, payment.ExpiresAt.IsZero())
	require.NotEmpty(t, payment.CustomerSnapshot)
	require.NotEmpty(t, payment.ProductSnapshot)
}

func TestCreatePaymentBelowMinimum(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)

	svc := NewPaymentService(db, cfg, &stubGateway{})

	_, err := svc.CreatePayment(context.Background(), createRequest(10, 499))
	require.ErrorIs(t, err, ErrInvalidAmount)

	var count int64
	require.NoError(t, db.Model(&model.Payment{}).Count(&count).Error)
	require.Zero(t, count, "rejected requests must not leave a record behind")
}

func TestCreatePaymentUnknownListing(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()

	svc := NewPaymentService(db, cfg, &stubGateway{})

	_, err := svc.CreatePayment(context.Background(), createRequest(999, 1000))
	require.ErrorIs(t, err, repository.ErrListingNotFound)
}

func TestCreatePaymentAlreadyContacted(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	require.NoError(t, db.Create(&model.Contact{
		ContactNo:        "CT-1",
		UserID:           1,
		ListingID:        10,
		OwnerID:          2,
		PaymentReference: "PMT-OLD",
	}).Error)

	svc := NewPaymentService(db, cfg, &stubGateway{})

	_, err := svc.CreatePayment(context.Background(), createRequest(10, 1000))
	require.ErrorIs(t, err, ErrAlreadyContacted)
}

func TestCreatePaymentGatewayRejected(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)

	stub := &stubGateway{initiateErr: gateway.ErrGatewayRejected}
	svc := NewPaymentService(db, cfg, stub)

	_, err := svc.CreatePayment(context.Background(), createRequest(10, 1000))
	require.ErrorIs(t, err, gateway.ErrGatewayRejected)

	var payment model.Payment
	require.NoError(t, db.Where("listing_id = ?", 10).First(&payment).Error)
	require.Equal(t, model.PaymentStatusFailed, payment.Status)
	require.Equal(t, "GATEWAY_REJECTED", payment.FailCode)
}

func TestCreatePaymentGatewayUnavailableStaysPending(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)

	stub := &stubGateway{initiateErr: gateway.ErrGatewayUnavailable}
	svc := NewPaymentService(db, cfg, stub)

	_, err := svc.CreatePayment(context.Background(), createRequest(10, 1000))
	require.ErrorIs(t, err, gateway.ErrGatewayUnavailable)

	// The record survives as PENDING for the expiry job to close.
	var payment model.Payment
	require.NoError(t, db.Where("listing_id = ?", 10).First(&payment).Error)
	require.Equal(t, model.PaymentStatusPending, payment.Status)
}

func TestCancelPaymentOnlyWhileProcessing(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-C1")

	svc := NewPaymentService(db, cfg, &stubGateway{})

	require.NoError(t, svc.CancelPayment(context.Background(), "PMT-C1"))
	require.Equal(t, model.PaymentStatusCancelled, paymentByReference(t, db, "PMT-C1").Status)

	// Repeating the cancel is a no-op; cancelling a settled payment is not.
	require.NoError(t, svc.CancelPayment(context.Background(), "PMT-C1"))

	completed := seedProcessingPayment(t, db, "PMT-C2")
	completed.Status = model.PaymentStatusCompleted
	require.NoError(t, db.Save(completed).Error)
	require.ErrorIs(t, svc.CancelPayment(context.Background(), "PMT-C2"), repository.ErrInvalidTransition)
}

func TestListUserPayments(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-L1")
	seedProcessingPayment(t, db, "PMT-L2")

	svc := NewPaymentService(db, cfg, &stubGateway{})

	payments, total, err := svc.ListUserPayments(context.Background(), 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, payments, 2)

	payments, total, err = svc.ListUserPayments(context.Background(), 42, 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, payments)
}
