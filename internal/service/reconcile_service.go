package service

import (
	"context"
	"errors"
	"log"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/gateway"
	"contactpay/internal/model"
	"contactpay/internal/repository"

	"gorm.io/gorm"
)

// Reconciler resolves an ambiguous payment against the gateway's verify
// endpoint, the single source of truth. It is driven from two places: the
// client-facing status check, and webhook ingest whenever a payload cannot
// be trusted.
type Reconciler struct {
	cfg           *config.Config
	paymentRepo   *repository.PaymentRepository
	gatewayClient gateway.Client
	committer     *Committer
}

func NewReconciler(db *gorm.DB, cfg *config.Config, gatewayClient gateway.Client, committer *Committer) *Reconciler {
	return &Reconciler{
		cfg:           cfg,
		paymentRepo:   repository.NewPaymentRepository(db),
		gatewayClient: gatewayClient,
		committer:     committer,
	}
}

// Resolve returns the payment's current state, querying the gateway only
// when the record is still ambiguous. A settled record is returned as-is
// without any gateway call. A gateway timeout or outage leaves the record
// untouched: ambiguity is resolved by a later poll or webhook, never by
// optimistically failing the payment.
func (r *Reconciler) Resolve(ctx context.Context, reference string) (*model.Payment, error) {
	payment, err := r.paymentRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if payment.IsSettled() {
		return payment, nil
	}

	externalID := payment.ExternalTxnID
	if externalID == "" {
		// The gateway echoes our reference when it never assigned its own
		// transaction id.
		externalID = payment.Reference
	}

	verifyCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Gateway.VerifyTimeoutSeconds)*time.Second)
	defer cancel()

	result, err := r.gatewayClient.Verify(verifyCtx, externalID)
	if err != nil {
		log.Printf("[Reconciler] verify unavailable for %s, leaving ambiguous: %v", reference, err)
		return payment, nil
	}

	switch result.Status {
	case gateway.StatusSuccess:
		evidence := CompletionEvidence{
			Source:        "gateway_verify",
			ExternalTxnID: externalID,
			Amount:        result.Amount,
			ProviderCode:  result.Code,
		}
		if _, err := r.committer.TryComplete(ctx, reference, evidence); err != nil {
			if errors.Is(err, ErrStaleTerminalConflict) {
				return r.paymentRepo.GetByReference(ctx, reference)
			}
			return nil, err
		}

	case gateway.StatusFailed:
		if err := r.paymentRepo.MarkFailed(ctx, reference, result.Code, "gateway reported failure"); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				// Completed in the meantime; the fresher signal wins.
				log.Printf("[Reconciler] ignoring failure report for settled payment %s", reference)
			} else {
				return nil, err
			}
		}

	case gateway.StatusPending:
		// Still in flight; the caller may poll again.
		return payment, nil
	}

	return r.paymentRepo.GetByReference(ctx, reference)
}
