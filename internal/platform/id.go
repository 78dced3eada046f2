package platform

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var tenantNameRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// NewID returns a new random tenant-scoped identifier (UUID string).
func NewID() string {
	return uuid.New().String()
}

// CompactID renders an id in the 32-digit form without hyphens. Ids that are
// not UUIDs are returned with hyphens stripped and lowercased.
func CompactID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return strings.ReplaceAll(u.String(), "-", "")
	}
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NormalizeTenantName trims and lowercases a tenant name.
func NormalizeTenantName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidTenantName reports whether a normalized name matches [a-z0-9-]+.
func ValidTenantName(name string) bool {
	return tenantNameRegex.MatchString(name)
}
