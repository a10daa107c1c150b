package internal

import (
	"strings"

	"github.com/google/uuid"
)

// NewPinID returns a random identifier for a new pin
func NewPinID() string {
	return uuid.NewString()
}

// SanitizeFilename creates a safe filename from a string
func SanitizeFilename(s string) string {
	if s == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isAlphaNumeric(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// isAlphaNumeric checks if a rune is an ASCII letter or digit
func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
