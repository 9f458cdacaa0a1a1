package service

import (
	"context"
	"testing"

	"contactpay/internal/gateway"
	"contactpay/internal/model"

	"github.com/stretchr/testify/require"
)

func TestResolveSettledPaymentSkipsGateway(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	payment := seedProcessingPayment(t, db, "PMT-R1")
	payment.Status = model.PaymentStatusCompleted
	require.NoError(t, db.Save(payment).Error)

	stub := &stubGateway{}
	committer := NewCommitter(db, cfg)
	reconciler := NewReconciler(db, cfg, stub, committer)

	resolved, err := reconciler.Resolve(context.Background(), "PMT-R1")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusCompleted, resolved.Status)
	require.Equal(t, 0, stub.verifyCallCount(), "settled records must not hit the gateway")
}

func TestResolveCompletesViaGatewayVerify(t *testing.T) {
	// Scenario D: the client polls before any webhook arrives; the gateway
	// reports success and the full commit runs off the poll path.
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-R2")

	stub := &stubGateway{verifyResult: &gateway.VerifyResult{Status: gateway.StatusSuccess, Amount: 1000, Code: "00"}}
	committer := NewCommitter(db, cfg)
	reconciler := NewReconciler(db, cfg, stub, committer)

	resolved, err := reconciler.Resolve(context.Background(), "PMT-R2")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusCompleted, resolved.Status)
	require.NotNil(t, resolved.ContactID)
	require.Equal(t, int64(1), contactCount(t, db))

	// A webhook landing after the poll already settled everything is a
	// pure no-op on the contact side.
	ingestor := NewWebhookIngestor(db, nil, cfg, committer, reconciler)
	raw, sig := successWebhook(t, "PMT-R2", true)
	result, err := ingestor.Ingest(context.Background(), raw, sig, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, model.WebhookOutcomeDuplicate, result.Outcome)
	require.Equal(t, int64(1), contactCount(t, db))
}

func TestResolveGatewayUnavailableLeavesAmbiguous(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-R3")

	stub := &stubGateway{verifyErr: gateway.ErrGatewayUnavailable}
	committer := NewCommitter(db, cfg)
	reconciler := NewReconciler(db, cfg, stub, committer)

	resolved, err := reconciler.Resolve(context.Background(), "PMT-R3")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusProcessing, resolved.Status)
	require.Equal(t, int64(0), contactCount(t, db))
}

func TestResolveMarksFailed(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-R4")

	stub := &stubGateway{verifyResult: &gateway.VerifyResult{Status: gateway.StatusFailed, Code: "600"}}
	committer := NewCommitter(db, cfg)
	reconciler := NewReconciler(db, cfg, stub, committer)

	resolved, err := reconciler.Resolve(context.Background(), "PMT-R4")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusFailed, resolved.Status)
	require.Equal(t, "600", resolved.FailCode)
}

func TestResolvePendingLeavesRecordUntouched(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	seedProcessingPayment(t, db, "PMT-R5")

	stub := &stubGateway{} // default verify answer is PENDING
	committer := NewCommitter(db, cfg)
	reconciler := NewReconciler(db, cfg, stub, committer)

	resolved, err := reconciler.Resolve(context.Background(), "PMT-R5")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusProcessing, resolved.Status)
	require.Equal(t, 1, stub.verifyCallCount())
}

func TestResolveUsesReferenceWhenNoExternalID(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seedListing(t, db, 10, 2)
	payment := seedProcessingPayment(t, db, "PMT-R6")
	require.NoError(t, db.Model(payment).Update("external_txn_id", "").Error)

	stub := &stubGateway{verifyResult: &gateway.VerifyResult{Status: gateway.StatusSuccess, Amount: 1000}}
	committer := NewCommitter(db, cfg)
	reconciler := NewReconciler(db, cfg, stub, committer)

	resolved, err := reconciler.Resolve(context.Background(), "PMT-R6")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusCompleted, resolved.Status)
}
