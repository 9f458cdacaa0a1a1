package model

import (
	"time"
)

// WebhookDelivery records every inbound gateway notification, accepted or
// not. Append only. The payment row keeps an aggregate delivery count; this
// table keeps the evidence for manual reconciliation.
type WebhookDelivery struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeliveryID     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"delivery_id"`
	Reference      string    `gorm:"type:varchar(64);index" json:"reference"`
	ExternalTxnID  string    `gorm:"type:varchar(64)" json:"external_txn_id"`
	ReportedStatus string    `gorm:"type:varchar(32)" json:"reported_status"`
	Amount         int64     `json:"amount"`
	PayloadHash    string    `gorm:"type:varchar(64);not null" json:"payload_hash"`
	SignatureValid bool      `gorm:"not null;default:false" json:"signature_valid"`
	RemoteAddr     string    `gorm:"type:varchar(64)" json:"remote_addr"`
	Outcome        string    `gorm:"type:varchar(32)" json:"outcome"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_delivery"
}

const (
	WebhookOutcomeCommitted  = "COMMITTED"
	WebhookOutcomeDuplicate  = "DUPLICATE"
	WebhookOutcomeDeferred   = "DEFERRED"
	WebhookOutcomeFailed     = "FAILED"
	WebhookOutcomeUnknownRef = "UNKNOWN_REFERENCE"
	WebhookOutcomeMalformed  = "MALFORMED"
	WebhookOutcomeAnomaly    = "ANOMALY"
)
