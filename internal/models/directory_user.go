package models

import (
	"time"

	"gorm.io/datatypes"
)

// DirectoryUser mirrors a login identity as exposed by the directory service.
// The directory owns these rows; a local table backs the default Directory
// implementation and test fixtures.
type DirectoryUser struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID      string `gorm:"type:text;not null;uniqueIndex"` // Directory user ID.
	Email       string `gorm:"type:text;index"`                // Login email, may be empty.
	DisplayName string `gorm:"type:text"`                      // Direct display name.

	// Metadata carries free-form identity keys (full_name, name, display_name,
	// first_name, last_name, given_name, family_name, preferred_username,
	// nickname) used by the name fallback chain.
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
