package identity

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/seedframe/adminapi/internal/models"

	"gorm.io/gorm"
)

// GormProfileStore reads explicit display names from the profile table.
type GormProfileStore struct {
	db *gorm.DB
}

// NewGormProfileStore constructs a GormProfileStore.
func NewGormProfileStore(db *gorm.DB) *GormProfileStore { return &GormProfileStore{db: db} }

// DisplayNames returns non-empty profile display names for the given IDs.
func (s *GormProfileStore) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.UserProfile
	if errFind := s.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Select("user_id", "full_name").
		Where("user_id IN ?", userIDs).
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	for _, row := range rows {
		name := strings.TrimSpace(row.FullName)
		if name == "" {
			continue
		}
		out[row.UserID] = name
	}
	return out, nil
}

// GormDirectory lists identities from the local directory mirror table.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory constructs a GormDirectory.
func NewGormDirectory(db *gorm.DB) *GormDirectory { return &GormDirectory{db: db} }

// ListUsers returns one directory page ordered by ID. page <= 0 returns the
// full listing.
func (d *GormDirectory) ListUsers(ctx context.Context, page, perPage int) ([]DirectoryEntry, error) {
	q := d.db.WithContext(ctx).Model(&models.DirectoryUser{}).Order("id ASC")
	if page > 0 && perPage > 0 {
		q = q.Offset((page - 1) * perPage).Limit(perPage)
	}
	var rows []models.DirectoryUser
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, errFind
	}

	entries := make([]DirectoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, DirectoryEntry{
			UserID:      row.UserID,
			Email:       row.Email,
			DisplayName: row.DisplayName,
			Metadata:    decodeMetadata(row.Metadata),
		})
	}
	return entries, nil
}

// decodeMetadata flattens a JSON metadata document into string values,
// ignoring non-string keys.
func decodeMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var doc map[string]any
	if errUnmarshal := json.Unmarshal(raw, &doc); errUnmarshal != nil {
		return nil
	}
	out := make(map[string]string, len(doc))
	for key, value := range doc {
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}
	return out
}
