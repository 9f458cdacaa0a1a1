package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/infrastructure/lock"
	"contactpay/internal/model"
	"contactpay/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// RefundService moves a COMPLETED payment to REFUNDED. The money movement
// itself happens at the gateway (out of scope here); this records the
// outcome and announces it.
type RefundService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
}

func NewRefundService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RefundService {
	return &RefundService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		paymentRepo: repository.NewPaymentRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type RefundRequest struct {
	Reference string `json:"reference" binding:"required"`
	Reason    string `json:"reason"`
}

type RefundResponse struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (s *RefundService) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	payment, err := s.paymentRepo.GetByReference(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	if payment.Status == model.PaymentStatusRefunded {
		return &RefundResponse{
			Reference: payment.Reference,
			Amount:    payment.Amount,
			Status:    model.PaymentStatusRefunded,
		}, nil
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: cannot refund status %s", repository.ErrInvalidTransition, payment.Status)
	}

	if s.redisClient != nil {
		refundLock := lock.NewDistributedLock(
			s.redisClient,
			fmt.Sprintf("payment:refund:lock:%s", req.Reference),
			req.Reference,
			30*time.Second,
		)
		if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("refund busy, retry later: %w", err)
		}
		defer refundLock.Unlock(ctx)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.MarkRefunded(ctx, tx, req.Reference, req.Reason); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"reference":   payment.Reference,
			"user_id":     payment.UserID,
			"amount":      payment.Amount,
			"currency":    payment.Currency,
			"status":      model.PaymentStatusRefunded,
			"reason":      req.Reason,
			"refunded_at": time.Now().Format(time.RFC3339),
		})
		return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: payment.Reference,
			Topic:      s.cfg.Kafka.Topic.PaymentResult,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Lost a race with another refund call; report the final state.
			current, getErr := s.paymentRepo.GetByReference(ctx, req.Reference)
			if getErr == nil && current.Status == model.PaymentStatusRefunded {
				return &RefundResponse{
					Reference: current.Reference,
					Amount:    current.Amount,
					Status:    model.PaymentStatusRefunded,
				}, nil
			}
		}
		return nil, err
	}

	log.Printf("[Refund] payment refunded: reference=%s amount=%d reason=%q", req.Reference, payment.Amount, req.Reason)

	return &RefundResponse{
		Reference: payment.Reference,
		Amount:    payment.Amount,
		Status:    model.PaymentStatusRefunded,
	}, nil
}
