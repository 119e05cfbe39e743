package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DeliveryRecord marks a provider message id as handled. Append-only; the
// external housekeeping job clears the whole table in bulk.
type DeliveryRecord struct {
	MessageID  string    `gorm:"primaryKey;type:varchar(255)" json:"message_id"`
	ReceivedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"received_at"`
}

func (DeliveryRecord) TableName() string { return "delivery_records" }

type Repository interface {
	// Admit records the id if unseen and reports whether this caller won.
	// A uniqueness conflict is "not admitted", not an error, so exactly
	// one concurrent caller proceeds.
	Admit(ctx context.Context, db *gorm.DB, messageID string) (bool, error)
	// PurgeAll unconditionally removes every record; invoked by external
	// housekeeping during the window where re-delivery is acceptably rare.
	PurgeAll(ctx context.Context, db *gorm.DB) (int64, error)
}
