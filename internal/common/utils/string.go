package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IsBlank reports whether s is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
// Identities are stored hashed so raw user identifiers never reach disk.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
