package rsvp

import (
	"crypto/rand"
	"fmt"
	"strings"

	"wedding-rsvp/internal/models"
)

// codeAlphabet deliberately omits 0/O, 1/I and L so codes survive being read
// aloud or printed on a card.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random invite code of the fixed length.
func GenerateCode() (string, error) {
	buf := make([]byte, models.CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// ValidCode reports whether code is a well-formed invite code: the fixed
// length, uppercase letters and digits only.
func ValidCode(code string) bool {
	if len(code) != models.CodeLength {
		return false
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
