package model

import (
	"time"
)

// Contact grants a paying user access to a listing owner. It is created
// exactly once per successful payment. The composite unique index on
// (user_id, listing_id) is a second idempotency guard underneath the
// payment-status CAS: even if two commits race, the database rejects the
// second insert.
type Contact struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ContactNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"contact_no"`
	UserID           int64     `gorm:"uniqueIndex:idx_contact_user_listing;not null" json:"user_id"`
	ListingID        int64     `gorm:"uniqueIndex:idx_contact_user_listing;not null" json:"listing_id"`
	OwnerID          int64     `gorm:"index;not null" json:"owner_id"`
	PaymentReference string    `gorm:"type:varchar(64);index;not null" json:"payment_reference"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contact"
}

// Listing holds the denormalized contact-request counter maintained by the
// side-effect commit. The listing subsystem proper owns the rest of the row.
type Listing struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID             int64     `gorm:"index;not null" json:"owner_id"`
	Title               string    `gorm:"type:varchar(256);not null" json:"title"`
	ContactRequestCount int64     `gorm:"not null;default:0" json:"contact_request_count"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Listing) TableName() string {
	return "listing"
}

// UserProfile carries the per-user spend total. Best-effort: a rare missed
// or doubled increment is repairable from the contact and payment tables.
type UserProfile struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalSpend int64     `gorm:"not null;default:0" json:"total_spend"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profile"
}
