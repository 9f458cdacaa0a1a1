package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusCancelled  = "CANCELLED"
	PaymentStatusRefunded   = "REFUNDED"
	PaymentStatusExpired    = "EXPIRED"
)

// ValidStatusTransitions is the single source of truth for the payment
// lifecycle. COMPLETED, FAILED, CANCELLED and EXPIRED are terminal except
// that a completed payment may still be refunded.
var ValidStatusTransitions = map[string][]string{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusExpired},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transition can leave the
// status. REFUNDED counts as terminal; COMPLETED does not (refund path).
func IsTerminalStatus(status string) bool {
	switch status {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsSettledStatus reports whether the payment has reached an outcome the
// client no longer needs to poll for.
func IsSettledStatus(status string) bool {
	return status == PaymentStatusCompleted || IsTerminalStatus(status)
}

// Payment is one monetary intent against the gateway. Reference is the
// idempotency key shared with the gateway; it is assigned once at creation
// and never reused. ContactID is non-null if and only if the payment is
// COMPLETED, and is written in the same transaction as that transition.
type Payment struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Reference     string `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference"`
	ExternalTxnID string `gorm:"type:varchar(64);index" json:"external_txn_id"`
	UserID        int64  `gorm:"index;not null" json:"user_id"`
	ListingID     int64  `gorm:"index;not null" json:"listing_id"`
	Amount        int64  `gorm:"not null" json:"amount"` // minor units
	Currency      string `gorm:"type:varchar(8);not null" json:"currency"`
	Status        string `gorm:"type:varchar(20);index;not null" json:"status"`
	ContactID     *int64 `gorm:"index" json:"contact_id"`

	// Immutable copies of identifying data at initiation time, so the
	// payment record stays meaningful if the user or listing changes later.
	CustomerSnapshot datatypes.JSON `gorm:"type:json" json:"customer_snapshot"`
	ProductSnapshot  datatypes.JSON `gorm:"type:json" json:"product_snapshot"`

	WebhookReceived       bool       `gorm:"not null;default:false" json:"webhook_received"`
	WebhookReceivedAt     *time.Time `json:"webhook_received_at"`
	WebhookSignatureValid bool       `gorm:"not null;default:false" json:"webhook_signature_valid"`
	WebhookPayloadHash    string     `gorm:"type:varchar(64)" json:"webhook_payload_hash"`
	WebhookDeliveryCount  int        `gorm:"not null;default:0" json:"webhook_delivery_count"`

	FailCode     string `gorm:"type:varchar(32)" json:"fail_code"`
	FailReason   string `gorm:"type:varchar(256)" json:"fail_reason"`
	RefundReason string `gorm:"type:varchar(256)" json:"refund_reason"`

	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

func (p *Payment) IsTerminal() bool {
	return IsTerminalStatus(p.Status)
}

func (p *Payment) IsSettled() bool {
	return IsSettledStatus(p.Status)
}
