package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/gateway"
	"contactpay/internal/infrastructure/database"
	"contactpay/internal/model"
	"contactpay/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-webhook-secret"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Gateway.Secret = testSecret
	cfg.Gateway.VerifyTimeoutSeconds = 2
	cfg.Business.MinAmount = 500
	cfg.Business.PaymentTimeoutMinutes = 30
	cfg.Business.ReconcileLockSeconds = 30
	cfg.Kafka.Topic.PaymentResult = "payment.result"
	return cfg
}

// stubGateway is a scriptable gateway.Client.
type stubGateway struct {
	mu sync.Mutex

	initiateResult *gateway.InitiateResult
	initiateErr    error
	verifyResult   *gateway.VerifyResult
	verifyErr      error

	initiateCalls int
	verifyCalls   int
}

func (s *stubGateway) Initiate(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiateCalls++
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	if s.initiateResult != nil {
		return s.initiateResult, nil
	}
	return &gateway.InitiateResult{
		PaymentURL:    "https://checkout.example.com/t/stub",
		ExternalTxnID: "TXN-" + req.Reference,
	}, nil
}

func (s *stubGateway) Verify(ctx context.Context, externalTxnID string) (*gateway.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	if s.verifyResult != nil {
		return s.verifyResult, nil
	}
	return &gateway.VerifyResult{Status: gateway.StatusPending}, nil
}

func (s *stubGateway) verifyCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCalls
}

func seedListing(t *testing.T, db *gorm.DB, id, ownerID int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.Listing{ID: id, OwnerID: ownerID, Title: "Listing"}).Error)
}

func seedProcessingPayment(t *testing.T, db *gorm.DB, reference string) *model.Payment {
	t.Helper()
	payment := &model.Payment{
		Reference:     reference,
		ExternalTxnID: "TXN-" + reference,
		UserID:        1,
		ListingID:     10,
		Amount:        1000,
		Currency:      "XOF",
		Status:        model.PaymentStatusProcessing,
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

// successWebhook builds a gateway-shaped success payload for reference,
// returning the raw bytes and a signature over exactly those bytes.
func successWebhook(t *testing.T, reference string, valid bool) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"cpm_trans_id": "TXN-" + reference,
		"cpm_custom":   reference,
		"cpm_result":   "00",
		"cpm_amount":   "1000",
	})
	require.NoError(t, err)

	secret := testSecret
	if !valid {
		secret = "attacker-secret"
	}
	return raw, gateway.NewSignatureVerifier(secret).Sign(raw)
}

func paymentByReference(t *testing.T, db *gorm.DB, reference string) *model.Payment {
	t.Helper()
	payment, err := repository.NewPaymentRepository(db).GetByReference(context.Background(), reference)
	require.NoError(t, err)
	return payment
}

func contactCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	total, err := repository.NewContactRepository(db).CountAll(context.Background())
	require.NoError(t, err)
	return total
}
