package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// canonicalNameRegex matches dotted canonical names such as
// "billing.Invoice" or "app/models.User.Status".
var canonicalNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_/-]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateTypeName validates a canonical name before it enters the registry.
//
// The rules keep names usable on the wire:
//   - No empty names
//   - No leading underscore (the atom namespace is reserved)
//   - No control characters or whitespace
//   - Dotted identifier segments only
//   - Maximum length of 256 characters
func ValidateTypeName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidRegistration, "type name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidRegistration, "type name too long (max 256 characters)")
	}

	if strings.HasPrefix(name, "_") {
		return New(ErrCodeInvalidRegistration, "type name %q uses the reserved '_' prefix", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidRegistration, "type name %q contains invalid characters", name)
		}
	}

	if !canonicalNameRegex.MatchString(name) {
		return New(ErrCodeInvalidRegistration, "invalid type name: %q", name)
	}

	return nil
}

// ValidateCollectionName validates a MongoDB collection name.
// It rejects names the server refuses: empty names, null bytes, '$',
// and the reserved "system." prefix.
func ValidateCollectionName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidConfig, "collection name cannot be empty")
	}

	const maxCollectionLength = 255
	if len(name) > maxCollectionLength {
		return New(ErrCodeInvalidConfig, "collection name too long (max %d characters)", maxCollectionLength)
	}

	if strings.ContainsAny(name, "\x00$") {
		return New(ErrCodeInvalidConfig, "collection name contains invalid characters")
	}

	if strings.HasPrefix(name, "system.") {
		return New(ErrCodeInvalidConfig, "collection name cannot use the reserved system. prefix")
	}

	return nil
}

// ValidateDatabaseName validates a MongoDB database name.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidConfig, "database name cannot be empty")
	}

	if len(name) > 63 {
		return New(ErrCodeInvalidConfig, "database name too long (max 63 characters)")
	}

	if strings.ContainsAny(name, "/\\. \"$*<>:|?\x00") {
		return New(ErrCodeInvalidConfig, "database name contains invalid characters")
	}

	return nil
}
