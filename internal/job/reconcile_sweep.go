package job

import (
	"context"
	"log"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/repository"
	"contactpay/internal/service"

	"gorm.io/gorm"
)

// ReconcileSweepJob is the safety net under the two reactive paths. It
// periodically resolves payments stuck in PROCESSING against the gateway
// (lost webhooks, clients that never polled) and finishes any completed
// payment whose contact link is missing.
type ReconcileSweepJob struct {
	paymentRepo *repository.PaymentRepository
	reconciler  *service.Reconciler
	committer   *service.Committer
	cfg         *config.Config
	interval    time.Duration
	batchSize   int
}

func NewReconcileSweepJob(db *gorm.DB, cfg *config.Config, reconciler *service.Reconciler, committer *service.Committer) *ReconcileSweepJob {
	return &ReconcileSweepJob{
		paymentRepo: repository.NewPaymentRepository(db),
		reconciler:  reconciler,
		committer:   committer,
		cfg:         cfg,
		interval:    30 * time.Second,
		batchSize:   50,
	}
}

func (j *ReconcileSweepJob) Start(ctx context.Context) {
	log.Println("[ReconcileSweep] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileSweep] stopping")
			return
		case <-ticker.C:
			j.sweepStalledProcessing(ctx)
			j.finishStalledCommits(ctx)
		}
	}
}

func (j *ReconcileSweepJob) sweepStalledProcessing(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(j.cfg.Business.ProcessingSweepAfterMin) * time.Minute)
	payments, err := j.paymentRepo.GetStalledProcessing(ctx, cutoff, j.batchSize)
	if err != nil {
		log.Printf("[ReconcileSweep] query failed: %v", err)
		return
	}

	if len(payments) == 0 {
		return
	}

	log.Printf("[ReconcileSweep] %d stalled payments to reconcile", len(payments))

	for _, payment := range payments {
		resolved, err := j.reconciler.Resolve(ctx, payment.Reference)
		if err != nil {
			log.Printf("[ReconcileSweep] resolve failed: reference=%s err=%v", payment.Reference, err)
			continue
		}
		if resolved.Status != payment.Status {
			log.Printf("[ReconcileSweep] settled: reference=%s %s -> %s",
				payment.Reference, payment.Status, resolved.Status)
		}
	}
}

func (j *ReconcileSweepJob) finishStalledCommits(ctx context.Context) {
	payments, err := j.paymentRepo.GetUnlinkedCompleted(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ReconcileSweep] unlinked query failed: %v", err)
		return
	}

	for _, payment := range payments {
		log.Printf("[ReconcileSweep] completed payment missing contact link: reference=%s", payment.Reference)
		if err := j.committer.FinishStalledCommit(ctx, payment); err != nil {
			log.Printf("[ReconcileSweep] finish commit failed: reference=%s err=%v", payment.Reference, err)
		}
	}
}
