// Package identity resolves user IDs into display identities by merging
// profile records, directory entries and configured domain rules.
package identity

import (
	"context"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
)

// User type classifications.
const (
	// UserTypeInternal marks users on an internal email domain.
	UserTypeInternal = "internal"
	// UserTypeExternal marks everyone else, including users without an email.
	UserTypeExternal = "external"
)

// DefaultInternalDomains classifies company addresses as internal users.
var DefaultInternalDomains = []string{"seedframe.com", "seedframe.ai"}

// defaultDirectoryPageSize matches the directory service's page ceiling.
const defaultDirectoryPageSize = 1000

// Identity is the resolved display identity for one user ID.
type Identity struct {
	UserID             string // Directory user ID.
	Name               string // Resolved display name, never empty.
	Email              string // Resolved email, placeholder if unknown.
	UserType           string // internal or external.
	HasDirectoryRecord bool   // Whether the directory still knows the ID.
}

// DirectoryEntry is one identity row returned by the directory service.
type DirectoryEntry struct {
	UserID      string            // Directory user ID.
	Email       string            // Login email, may be empty.
	DisplayName string            // Direct display name, may be empty.
	Metadata    map[string]string // Free-form identity metadata keys.
}

// Directory lists login identities. Listings are paginated on the directory's
// side; page <= 0 requests the full unpaginated listing.
type Directory interface {
	ListUsers(ctx context.Context, page, perPage int) ([]DirectoryEntry, error)
}

// ProfileStore returns explicit profile display names keyed by user ID.
type ProfileStore interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Resolver merges profile, directory and payment-domain knowledge into
// per-user display identities.
type Resolver struct {
	profiles        ProfileStore
	directory       Directory
	internalDomains []string
	pageSize        int
}

// NewResolver constructs a Resolver. An empty internalDomains falls back to
// DefaultInternalDomains.
func NewResolver(profiles ProfileStore, directory Directory, internalDomains []string) *Resolver {
	if len(internalDomains) == 0 {
		internalDomains = DefaultInternalDomains
	}
	return &Resolver{
		profiles:        profiles,
		directory:       directory,
		internalDomains: internalDomains,
		pageSize:        defaultDirectoryPageSize,
	}
}

// Resolve returns a display identity for every requested user ID. Lookup
// failures degrade the affected IDs to weaker fallback tiers; a total
// directory outage still yields placeholder identities for every ID.
func (r *Resolver) Resolve(ctx context.Context, userIDs []string) map[string]Identity {
	profileNames := map[string]string{}
	if r.profiles != nil {
		names, errProfiles := r.profiles.DisplayNames(ctx, userIDs)
		if errProfiles != nil {
			log.WithError(errProfiles).Warn("identity: profile lookup failed, using directory tiers only")
		} else {
			profileNames = names
		}
	}

	entries := r.listDirectory(ctx)

	out := make(map[string]Identity, len(userIDs))
	for _, id := range userIDs {
		entry, hasEntry := entries[id]
		email := ""
		if hasEntry {
			email = strings.TrimSpace(entry.Email)
		}

		name := strings.TrimSpace(profileNames[id])
		if name == "" && hasEntry {
			name = directoryName(entry)
		}
		if name == "" {
			name = nameFromEmail(email)
		}
		if name == "" {
			name = "User " + shortID(id)
		}

		if email == "" {
			email = "user-" + shortID(id) + "@unknown.com"
		}

		out[id] = Identity{
			UserID:             id,
			Name:               name,
			Email:              email,
			UserType:           r.classify(email),
			HasDirectoryRecord: hasEntry,
		}
	}
	return out
}

// listDirectory exhausts the directory's own pagination and returns entries
// keyed by user ID. A first-page failure retries once without pagination;
// later failures keep whatever was already listed.
func (r *Resolver) listDirectory(ctx context.Context) map[string]DirectoryEntry {
	out := map[string]DirectoryEntry{}
	if r.directory == nil {
		return out
	}

	perPage := r.pageSize
	for page := 1; ; page++ {
		batch, errList := r.directory.ListUsers(ctx, page, perPage)
		if errList != nil {
			if page == 1 {
				batch, errList = r.directory.ListUsers(ctx, 0, 0)
				if errList != nil {
					log.WithError(errList).Warn("identity: directory listing unavailable, degrading to placeholders")
					return out
				}
				for _, entry := range batch {
					out[entry.UserID] = entry
				}
				return out
			}
			log.WithError(errList).WithField("page", page).Warn("identity: directory page failed, keeping partial listing")
			return out
		}
		if len(batch) == 0 {
			return out
		}
		for _, entry := range batch {
			out[entry.UserID] = entry
		}
		if len(batch) < perPage {
			return out
		}
	}
}

// metadataNameKeys is the strict priority order for directory metadata names.
var metadataNameKeys = []string{"full_name", "name", "display_name"}

// directoryName resolves a name from a directory entry's fields in strict
// priority order.
func directoryName(entry DirectoryEntry) string {
	if name := strings.TrimSpace(entry.DisplayName); name != "" {
		return name
	}
	meta := entry.Metadata
	if meta == nil {
		return ""
	}
	field := func(key string) string { return strings.TrimSpace(meta[key]) }

	for _, key := range metadataNameKeys {
		if name := field(key); name != "" {
			return name
		}
	}
	if first, last := field("first_name"), field("last_name"); first != "" && last != "" {
		return first + " " + last
	}
	if first := field("first_name"); first != "" {
		return first
	}
	if last := field("last_name"); last != "" {
		return last
	}
	if given := field("given_name"); given != "" {
		return given
	}
	if family := field("family_name"); family != "" {
		return family
	}
	if given, family := field("given_name"), field("family_name"); given != "" && family != "" {
		return given + " " + family
	}
	if preferred := field("preferred_username"); preferred != "" {
		return preferred
	}
	return field("nickname")
}

// nameFromEmail derives a display name from an email local part. Only local
// parts longer than two characters that start with a letter qualify.
func nameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 {
		return ""
	}
	local := strings.TrimSpace(email[:at])
	if len(local) <= 2 {
		return ""
	}
	runes := []rune(local)
	if !unicode.IsLetter(runes[0]) {
		return ""
	}
	replaced := strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	runes = []rune(replaced)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// classify maps an email to internal/external by domain suffix.
func (r *Resolver) classify(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return UserTypeExternal
	}
	domain := strings.ToLower(email[at+1:])
	for _, internal := range r.internalDomains {
		internal = strings.ToLower(strings.TrimSpace(internal))
		if internal == "" {
			continue
		}
		if domain == internal || strings.HasSuffix(domain, "."+internal) {
			return UserTypeInternal
		}
	}
	return UserTypeExternal
}

// shortID returns the first eight characters of a user ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
