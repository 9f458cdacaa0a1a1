package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"contactpay/internal/config"
	"contactpay/internal/model"
	"contactpay/internal/repository"
	"contactpay/pkg/idgen"

	"gorm.io/gorm"
)

// ErrStaleTerminalConflict marks a success signal arriving for a payment
// that already failed, was cancelled or expired. Policy: log for manual
// reconciliation, never reopen the record.
var ErrStaleTerminalConflict = errors.New("success signal for a payment in a terminal non-completed state")

// CompletionEvidence captures where a success claim came from. Only
// callers holding trusted evidence (valid webhook signature or the
// gateway's own verify answer) may call TryComplete.
type CompletionEvidence struct {
	Source        string // "webhook" or "gateway_verify"
	ExternalTxnID string
	Amount        int64
	ProviderCode  string
}

// Committer owns the single allowed path into COMPLETED and the side
// effects bound to it. The status flip, the contact creation and its
// back-link commit or roll back as one database transaction, so a
// COMPLETED payment without its contact cannot be produced here. Counter
// increments run after the commit and are deliberately best-effort.
type Committer struct {
	db          *gorm.DB
	cfg         *config.Config
	paymentRepo *repository.PaymentRepository
	contactRepo *repository.ContactRepository
	counterRepo *repository.CounterRepository
	outboxRepo  *repository.OutboxRepository
}

func NewCommitter(db *gorm.DB, cfg *config.Config) *Committer {
	return &Committer{
		db:          db,
		cfg:         cfg,
		paymentRepo: repository.NewPaymentRepository(db),
		contactRepo: repository.NewContactRepository(db),
		counterRepo: repository.NewCounterRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// TryComplete performs the atomic compare-and-set into COMPLETED and, when
// it wins, the exactly-once domain mutation. Of any number of concurrent
// callers for the same reference, exactly one gets committed=true; the
// rest get committed=false and must not write anything further.
//
// committed=false with a nil error is the normal duplicate path (replayed
// webhook, repeated poll). committed=false with ErrStaleTerminalConflict
// is the anomaly path.
func (c *Committer) TryComplete(ctx context.Context, reference string, evidence CompletionEvidence) (bool, error) {
	payment, err := c.paymentRepo.GetByReference(ctx, reference)
	if err != nil {
		return false, err
	}

	if evidence.Amount > 0 && evidence.Amount != payment.Amount {
		log.Printf("[Committer] amount mismatch on %s: recorded=%d reported=%d source=%s",
			reference, payment.Amount, evidence.Amount, evidence.Source)
	}

	committed := false
	now := time.Now()

	err = c.db.Transaction(func(tx *gorm.DB) error {
		won, err := c.paymentRepo.CompleteCAS(ctx, tx, reference, now)
		if err != nil {
			return err
		}
		if !won {
			// Nothing written; outcome classified after the transaction.
			return nil
		}
		committed = true

		if payment.ExternalTxnID == "" && evidence.ExternalTxnID != "" {
			if err := tx.WithContext(ctx).Model(&model.Payment{}).
				Where("reference = ?", reference).
				Update("external_txn_id", evidence.ExternalTxnID).Error; err != nil {
				return err
			}
		}

		contact, err := c.createContact(ctx, tx, payment)
		if err != nil {
			return err
		}

		if err := c.paymentRepo.SetContactID(ctx, tx, reference, contact.ID); err != nil {
			return err
		}

		return c.enqueueCompletedEvent(ctx, tx, payment, contact, now)
	})
	if err != nil {
		return false, fmt.Errorf("commit failed for %s: %w", reference, err)
	}

	if !committed {
		current, err := c.paymentRepo.GetByReference(ctx, reference)
		if err != nil {
			return false, err
		}
		switch current.Status {
		case model.PaymentStatusCompleted, model.PaymentStatusRefunded:
			return false, nil
		case model.PaymentStatusFailed, model.PaymentStatusCancelled, model.PaymentStatusExpired:
			log.Printf("[Anomaly] late success signal for %s: status=%s source=%s code=%s",
				reference, current.Status, evidence.Source, evidence.ProviderCode)
			return false, ErrStaleTerminalConflict
		default:
			// Lost a race against another writer mid-flight; the replayed
			// signal or next poll will observe the settled state.
			return false, nil
		}
	}

	c.incrementCounters(ctx, payment)

	log.Printf("[Committer] payment completed: reference=%s user=%d listing=%d amount=%d source=%s",
		reference, payment.UserID, payment.ListingID, payment.Amount, evidence.Source)
	return true, nil
}

// FinishStalledCommit re-runs the contact creation and link for a
// COMPLETED payment whose contact_id is still null. Defensive: the commit
// transaction normally makes this state unreachable.
func (c *Committer) FinishStalledCommit(ctx context.Context, payment *model.Payment) error {
	if payment.Status != model.PaymentStatusCompleted || payment.ContactID != nil {
		return nil
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		contact, err := c.createContact(ctx, tx, payment)
		if err != nil {
			return err
		}
		return c.paymentRepo.SetContactID(ctx, tx, payment.Reference, contact.ID)
	})
	if err != nil {
		return err
	}

	c.incrementCounters(ctx, payment)
	return nil
}

func (c *Committer) createContact(ctx context.Context, tx *gorm.DB, payment *model.Payment) (*model.Contact, error) {
	var ownerID int64
	if listing, err := c.counterRepo.GetListing(ctx, payment.ListingID); err == nil {
		ownerID = listing.OwnerID
	} else {
		log.Printf("[Committer] listing %d not found while creating contact for %s", payment.ListingID, payment.Reference)
	}

	contact := &model.Contact{
		ContactNo:        idgen.GenerateContactNo(),
		UserID:           payment.UserID,
		ListingID:        payment.ListingID,
		OwnerID:          ownerID,
		PaymentReference: payment.Reference,
	}

	surviving, inserted, err := c.contactRepo.CreateIfAbsent(ctx, tx, contact)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	if !inserted {
		// The uniqueness constraint absorbed a duplicate. The payment CAS
		// already decided exactly-once at the payment layer; this guard
		// only defends the contact table itself.
		log.Printf("[Committer] duplicate contact absorbed: user=%d listing=%d reference=%s",
			payment.UserID, payment.ListingID, payment.Reference)
	}
	return surviving, nil
}

func (c *Committer) enqueueCompletedEvent(ctx context.Context, tx *gorm.DB, payment *model.Payment, contact *model.Contact, completedAt time.Time) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"reference":    payment.Reference,
		"user_id":      payment.UserID,
		"listing_id":   payment.ListingID,
		"contact_id":   contact.ID,
		"contact_no":   contact.ContactNo,
		"amount":       payment.Amount,
		"currency":     payment.Currency,
		"status":       model.PaymentStatusCompleted,
		"completed_at": completedAt.Format(time.RFC3339),
	})

	return c.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: payment.Reference,
		Topic:      c.cfg.Kafka.Topic.PaymentResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

// incrementCounters updates the denormalized listing and user totals.
// Best-effort: failures are logged, never surfaced, and can be repaired
// from the contact table.
func (c *Committer) incrementCounters(ctx context.Context, payment *model.Payment) {
	if err := c.counterRepo.IncrementListingContacts(ctx, payment.ListingID); err != nil {
		log.Printf("[Committer] listing counter increment failed: listing=%d err=%v", payment.ListingID, err)
	}
	if err := c.counterRepo.IncrementUserSpend(ctx, payment.UserID, payment.Amount); err != nil {
		log.Printf("[Committer] user spend increment failed: user=%d err=%v", payment.UserID, err)
	}
}
