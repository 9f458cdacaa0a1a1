package service

import (
	"context"
	"errors"
	"log"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/gateway"
	"contactpay/internal/infrastructure/lock"
	"contactpay/internal/model"
	"contactpay/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookIngestor turns provider notifications into state transitions.
// The central rule: a payload may only complete a payment directly when
// its signature verifies against the exact raw bytes; anything else is
// unconfirmed and must go through the authoritative gateway query.
type WebhookIngestor struct {
	cfg         *config.Config
	redisClient *redis.Client
	verifier    *gateway.SignatureVerifier
	paymentRepo *repository.PaymentRepository
	webhookRepo *repository.WebhookRepository
	committer   *Committer
	reconciler  *Reconciler
}

func NewWebhookIngestor(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, committer *Committer, reconciler *Reconciler) *WebhookIngestor {
	return &WebhookIngestor{
		cfg:         cfg,
		redisClient: redisClient,
		verifier:    gateway.NewSignatureVerifier(cfg.Gateway.Secret),
		paymentRepo: repository.NewPaymentRepository(db),
		webhookRepo: repository.NewWebhookRepository(db),
		committer:   committer,
		reconciler:  reconciler,
	}
}

type IngestResult struct {
	Reference string
	Outcome   string
}

// Ingest processes one delivery. The caller acknowledges the gateway with
// HTTP 200 whenever this returns, whatever the outcome: a retry storm over
// a payment we have already settled helps nobody. Errors mean this
// delivery could not be recorded or acted on at all and a gateway retry is
// actually wanted.
func (s *WebhookIngestor) Ingest(ctx context.Context, rawBody []byte, headerSignature, remoteAddr string) (*IngestResult, error) {
	receivedAt := time.Now()

	notif, err := gateway.ParseNotification(rawBody)
	if err != nil {
		log.Printf("[Webhook] malformed delivery from %s: %v", remoteAddr, err)
		s.recordDelivery(ctx, &model.WebhookDelivery{
			DeliveryID:  uuid.NewString(),
			PayloadHash: gateway.PayloadHash(rawBody),
			RemoteAddr:  remoteAddr,
			Outcome:     model.WebhookOutcomeMalformed,
		})
		return &IngestResult{Outcome: model.WebhookOutcomeMalformed}, nil
	}

	signature := headerSignature
	if signature == "" {
		signature = notif.Signature
	}
	signatureValid := s.verifier.Verify(rawBody, signature)

	delivery := &model.WebhookDelivery{
		DeliveryID:     uuid.NewString(),
		Reference:      notif.Reference,
		ExternalTxnID:  notif.ExternalTxnID,
		ReportedStatus: notif.ReportedStatus,
		Amount:         notif.Amount,
		PayloadHash:    gateway.PayloadHash(rawBody),
		SignatureValid: signatureValid,
		RemoteAddr:     remoteAddr,
	}

	payment, err := s.paymentRepo.GetByReference(ctx, notif.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			// Acknowledge without revealing whether the reference exists;
			// this endpoint is reachable by anyone.
			delivery.Outcome = model.WebhookOutcomeUnknownRef
			s.recordDelivery(ctx, delivery)
			return &IngestResult{Reference: notif.Reference, Outcome: model.WebhookOutcomeUnknownRef}, nil
		}
		return nil, err
	}

	// Delivery accounting happens on every call, before and independent of
	// any idempotency decision.
	if err := s.paymentRepo.RecordWebhookDelivery(ctx, notif.Reference, delivery.PayloadHash, signatureValid, receivedAt); err != nil {
		return nil, err
	}

	outcome := s.process(ctx, payment, notif, signatureValid)
	delivery.Outcome = outcome
	s.recordDelivery(ctx, delivery)

	return &IngestResult{Reference: notif.Reference, Outcome: outcome}, nil
}

func (s *WebhookIngestor) process(ctx context.Context, payment *model.Payment, notif *gateway.Notification, signatureValid bool) string {
	if payment.Status == model.PaymentStatusCompleted || payment.Status == model.PaymentStatusRefunded {
		return model.WebhookOutcomeDuplicate
	}

	// Advisory lock per reference: keeps a redelivery burst and a
	// concurrent status poll from stacking gateway verify calls. The
	// status CAS stays the correctness mechanism; not holding the lock is
	// never a reason to drop a delivery.
	if s.redisClient != nil {
		reconcileLock := lock.NewReconcileLock(s.redisClient, payment.Reference,
			time.Duration(s.cfg.Business.ReconcileLockSeconds)*time.Second)
		if acquired, err := reconcileLock.TryLock(ctx); err == nil && acquired {
			defer reconcileLock.Unlock(ctx)
		}
	}

	evidence := CompletionEvidence{
		Source:        "webhook",
		ExternalTxnID: notif.ExternalTxnID,
		Amount:        notif.Amount,
		ProviderCode:  notif.ProviderCode,
	}

	switch {
	case signatureValid && notif.ReportedStatus == gateway.StatusSuccess:
		committed, err := s.committer.TryComplete(ctx, payment.Reference, evidence)
		if err != nil {
			if errors.Is(err, ErrStaleTerminalConflict) {
				return model.WebhookOutcomeAnomaly
			}
			log.Printf("[Webhook] commit error for %s: %v", payment.Reference, err)
			return model.WebhookOutcomeDeferred
		}
		if !committed {
			return model.WebhookOutcomeDuplicate
		}
		return model.WebhookOutcomeCommitted

	case signatureValid && notif.ReportedStatus == gateway.StatusFailed:
		if err := s.paymentRepo.MarkFailed(ctx, payment.Reference, notif.ProviderCode, "gateway webhook reported failure"); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				log.Printf("[Anomaly] failure report for settled payment %s", payment.Reference)
				return model.WebhookOutcomeAnomaly
			}
			log.Printf("[Webhook] mark failed error for %s: %v", payment.Reference, err)
			return model.WebhookOutcomeDeferred
		}
		return model.WebhookOutcomeFailed

	default:
		// Unsigned, tampered or inconclusive payload. The claim inside it
		// is worthless either way; ask the gateway directly.
		resolved, err := s.reconciler.Resolve(ctx, payment.Reference)
		if err != nil {
			log.Printf("[Webhook] reconcile error for %s: %v", payment.Reference, err)
			return model.WebhookOutcomeDeferred
		}
		switch resolved.Status {
		case model.PaymentStatusCompleted:
			return model.WebhookOutcomeCommitted
		case model.PaymentStatusFailed:
			return model.WebhookOutcomeFailed
		default:
			return model.WebhookOutcomeDeferred
		}
	}
}

func (s *WebhookIngestor) recordDelivery(ctx context.Context, delivery *model.WebhookDelivery) {
	if err := s.webhookRepo.Create(ctx, delivery); err != nil {
		log.Printf("[Webhook] failed to record delivery %s: %v", delivery.DeliveryID, err)
	}
}
