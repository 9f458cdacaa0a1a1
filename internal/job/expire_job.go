package job

import (
	"context"
	"log"
	"time"

	"contactpay/internal/repository"

	"gorm.io/gorm"
)

// ExpireJob closes PENDING payments the client abandoned before the
// gateway ever acknowledged them. PROCESSING payments are never expired
// here; the reconcile sweep decides those against the gateway.
type ExpireJob struct {
	paymentRepo *repository.PaymentRepository
	interval    time.Duration
	batchSize   int
}

func NewExpireJob(db *gorm.DB) *ExpireJob {
	return &ExpireJob{
		paymentRepo: repository.NewPaymentRepository(db),
		interval:    10 * time.Second,
		batchSize:   100,
	}
}

func (j *ExpireJob) Start(ctx context.Context) {
	log.Println("[ExpireJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ExpireJob] stopping")
			return
		case <-ticker.C:
			j.expirePendingPayments(ctx)
		}
	}
}

func (j *ExpireJob) expirePendingPayments(ctx context.Context) {
	payments, err := j.paymentRepo.GetExpiredPending(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ExpireJob] query failed: %v", err)
		return
	}

	for _, payment := range payments {
		if err := j.paymentRepo.MarkExpired(ctx, payment.Reference); err != nil {
			log.Printf("[ExpireJob] expire failed: reference=%s err=%v", payment.Reference, err)
			continue
		}
		log.Printf("[ExpireJob] payment expired: reference=%s user=%d", payment.Reference, payment.UserID)
	}
}
