package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile mirrors a profile-store record for identity resolution reads.
type UserProfile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:text;not null;uniqueIndex"` // Directory user ID.
	FullName string `gorm:"type:text"`                      // Explicit display name.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Profile metadata JSON.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
