package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/gateway"
	"contactpay/internal/model"
	"contactpay/internal/repository"
	"contactpay/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrInvalidAmount    = errors.New("amount below the configured minimum")
	ErrAlreadyContacted = errors.New("a contact already exists for this user and listing")
)

// PaymentService creates payment intents and hands them to the gateway.
// Once a payment reaches PROCESSING, its fate is decided exclusively by
// the reconciliation paths (webhook ingest and status polling).
type PaymentService struct {
	db            *gorm.DB
	cfg           *config.Config
	gatewayClient gateway.Client
	paymentRepo   *repository.PaymentRepository
	contactRepo   *repository.ContactRepository
	counterRepo   *repository.CounterRepository
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, gatewayClient gateway.Client) *PaymentService {
	return &PaymentService{
		db:            db,
		cfg:           cfg,
		gatewayClient: gatewayClient,
		paymentRepo:   repository.NewPaymentRepository(db),
		contactRepo:   repository.NewContactRepository(db),
		counterRepo:   repository.NewCounterRepository(db),
	}
}

type CreatePaymentRequest struct {
	UserID    int64  `json:"user_id"`
	ListingID int64  `json:"listing_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Currency  string `json:"currency" binding:"required"`
	Customer  struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"customer"`
}

type CreatePaymentResponse struct {
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	PaymentURL string `json:"payment_url,omitempty"`
}

func (s *PaymentService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if req.Amount < s.cfg.Business.MinAmount {
		return nil, fmt.Errorf("%w: got %d, minimum %d", ErrInvalidAmount, req.Amount, s.cfg.Business.MinAmount)
	}

	listing, err := s.counterRepo.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	if _, err := s.contactRepo.GetByUserAndListing(ctx, req.UserID, req.ListingID); err == nil {
		return nil, ErrAlreadyContacted
	} else if !errors.Is(err, repository.ErrContactNotFound) {
		return nil, err
	}

	customerSnapshot, _ := json.Marshal(map[string]interface{}{
		"user_id": req.UserID,
		"name":    req.Customer.Name,
		"phone":   req.Customer.Phone,
		"email":   req.Customer.Email,
	})
	productSnapshot, _ := json.Marshal(map[string]interface{}{
		"listing_id": listing.ID,
		"owner_id":   listing.OwnerID,
		"title":      listing.Title,
	})

	payment := &model.Payment{
		Reference:        idgen.GenerateReference(),
		UserID:           req.UserID,
		ListingID:        req.ListingID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Status:           model.PaymentStatusPending,
		CustomerSnapshot: customerSnapshot,
		ProductSnapshot:  productSnapshot,
		ExpiresAt:        time.Now().Add(time.Duration(s.cfg.Business.PaymentTimeoutMinutes) * time.Minute),
	}

	if err := s.paymentRepo.Create(ctx, nil, payment); err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}

	initResult, err := s.gatewayClient.Initiate(ctx, &gateway.InitiateRequest{
		Reference:   payment.Reference,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: fmt.Sprintf("Contact access for listing %d", listing.ID),
		Customer: gateway.Customer{
			ID:    req.UserID,
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
			Email: req.Customer.Email,
		},
		NotifyURL: s.cfg.Gateway.NotifyURL,
		ReturnURL: s.cfg.Gateway.ReturnURL,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayRejected) {
			if markErr := s.paymentRepo.MarkFailed(ctx, payment.Reference, "GATEWAY_REJECTED", err.Error()); markErr != nil {
				log.Printf("[Payment] mark failed after rejection: %s: %v", payment.Reference, markErr)
			}
			return nil, err
		}
		// Unavailable: the record stays PENDING; the expiry job closes it
		// if the client never retries.
		return nil, err
	}

	if err := s.paymentRepo.MarkProcessing(ctx, payment.Reference, initResult.ExternalTxnID); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	log.Printf("[Payment] initiated: reference=%s user=%d listing=%d amount=%d",
		payment.Reference, req.UserID, req.ListingID, req.Amount)

	return &CreatePaymentResponse{
		Reference:  payment.Reference,
		Status:     model.PaymentStatusProcessing,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		PaymentURL: initResult.PaymentURL,
	}, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, reference string) (*model.Payment, error) {
	return s.paymentRepo.GetByReference(ctx, reference)
}

// CancelPayment is allowed only while PROCESSING; a settled payment is
// untouchable.
func (s *PaymentService) CancelPayment(ctx context.Context, reference string) error {
	return s.paymentRepo.MarkCancelled(ctx, reference)
}

func (s *PaymentService) ListUserPayments(ctx context.Context, userID int64, page, pageSize int) ([]*model.Payment, int64, error) {
	return s.paymentRepo.ListByUserID(ctx, userID, page, pageSize)
}
