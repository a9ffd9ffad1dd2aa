package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix identifies Slate API keys
	KeyPrefix = "slate_"
	// KeyLength is the total length of random bytes (32 bytes = 256 bits)
	KeyLength = 32
)

// GenerateSecret mints a new API key secret.
// Format: slate_<base64url(32 random bytes)>
// The raw secret is returned exactly once; only the SHA-256 hash and a short
// display prefix are stored.
func GenerateSecret() (secret string, secretHash string, displayPrefix string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	full := KeyPrefix + encoded

	hash := sha256.Sum256([]byte(full))
	hashStr := hex.EncodeToString(hash[:])

	prefix := KeyPrefix
	if len(encoded) >= 8 {
		prefix = KeyPrefix + encoded[:8]
	}

	return full, hashStr, prefix, nil
}

// HashSecret computes the SHA-256 hash of a secret for lookup.
func HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// ValidateFormat checks whether a presented secret looks like a Slate key
// before any database work.
func ValidateFormat(secret string) error {
	if !strings.HasPrefix(secret, KeyPrefix) {
		return fmt.Errorf("key must start with %q", KeyPrefix)
	}

	encoded := strings.TrimPrefix(secret, KeyPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("key is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}

	return nil
}
