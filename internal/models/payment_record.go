package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment record statuses.
const (
	// PaymentStatusPending marks a payment awaiting settlement.
	PaymentStatusPending = "pending"
	// PaymentStatusCompleted marks a settled payment.
	PaymentStatusCompleted = "completed"
	// PaymentStatusFailed marks a failed payment.
	PaymentStatusFailed = "failed"
)

// PaymentRecord mirrors a payment-store row, read to annotate aggregates
// with whether a user has ever completed a payment.
type PaymentRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string          `gorm:"type:text;not null;index"`              // Paying user ID.
	Status string          `gorm:"type:text;not null;index"`              // Payment status.
	Amount decimal.Decimal `gorm:"type:decimal(16,6);not null;default:0"` // Payment amount in dollars.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
