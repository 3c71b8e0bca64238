package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix marks generated gateway admin keys.
	KeyPrefix = "agk_"
	keyBytes  = 32
	// HashCost is the bcrypt cost used by NewAdminKey.
	HashCost = 12
)

// AdminKey is a freshly generated admin key. Plain is handed to API
// callers; Hash can be stored in ADMIN_API_KEY instead of the plain value.
type AdminKey struct {
	Plain string
	Hash  string
}

// NewAdminKey generates a random admin key and its bcrypt hash.
func NewAdminKey() (AdminKey, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return AdminKey{}, fmt.Errorf("read random bytes: %w", err)
	}
	plain := KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), HashCost)
	if err != nil {
		return AdminKey{}, fmt.Errorf("hash admin key: %w", err)
	}
	return AdminKey{Plain: plain, Hash: string(hash)}, nil
}

// IsHashed reports whether a configured key is a bcrypt hash rather than
// a plain key.
func IsHashed(configured string) bool {
	_, err := bcrypt.Cost([]byte(configured))
	return err == nil
}

// MatchKey reports whether token matches the configured key, which may be
// plain text or a bcrypt hash. An empty configured key matches nothing.
func MatchKey(token, configured string) bool {
	if configured == "" || token == "" {
		return false
	}
	if IsHashed(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(configured)) == 1
}

// BearerToken returns the token from an Authorization header value.
// A header without the Bearer scheme is taken as the bare token.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
