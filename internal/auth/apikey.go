// Package auth provides the credential primitives and request-time validation
// for the API gate: key generation, one-way hashing, bearer extraction, and
// the validator that turns a bearer token into a tier-resolved caller.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of characters shown in dashboards to
	// identify a key without revealing it
	DisplayPrefixLength = 12
)

// GenerateAPIKey creates a new random API key with the given prefix.
// Returns: full key (shown to the user exactly once), SHA-256 hex digest
// (the only form ever persisted), and the display prefix.
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := fmt.Sprintf("%s_%s", prefix, randomPart)

	displayPrefixStr := fullKey
	if len(fullKey) > DisplayPrefixLength {
		displayPrefixStr = fullKey[:DisplayPrefixLength]
	}

	return fullKey, HashKey(fullKey), displayPrefixStr, nil
}

// HashKey derives the deterministic lookup digest for a key. SHA-256 is used
// rather than a salted password hash because the credential row must be
// fetchable by a unique indexed column; the 256-bit random input makes the
// digest preimage-resistant in practice.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HasPrefix reports whether a candidate token carries the expected issuance
// prefix (e.g. "qrk_"). Anything else is malformed and needs no database work.
func HasPrefix(token, prefix string) bool {
	return strings.HasPrefix(token, prefix+"_")
}

// ExtractBearer extracts the API key from an Authorization header.
// Expected format: "Bearer qrk_abc123xyz..."
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	key := strings.TrimPrefix(header, "Bearer ")
	key = strings.TrimSpace(key)

	if key == "" {
		return "", errors.New("API key is empty after Bearer prefix")
	}

	return key, nil
}
