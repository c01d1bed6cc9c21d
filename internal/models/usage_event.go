package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageEvent records metering data for a single billable request.
// Rows are owned by the event pipeline; this service only reads them.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:text;not null;index"` // Owning user ID.

	PromptTokens     int64 `gorm:"not null;default:0"` // Prompt token count.
	CompletionTokens int64 `gorm:"not null;default:0"` // Completion token count.
	TotalTokens      int64 `gorm:"not null;default:0"` // Total token count.

	EstimatedCost decimal.Decimal `gorm:"type:decimal(16,6);not null;default:0"` // Estimated cost in dollars.

	CreatedAt time.Time `gorm:"not null;index"` // Event timestamp.
}

// TableName pins the table name shared with the event pipeline.
func (UsageEvent) TableName() string { return "usage_events" }
