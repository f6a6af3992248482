package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// API key format constants.
	keyPrefix       = "processor_ak_"
	randomBytesSize = 32
	apiKeyLength    = len(keyPrefix) + randomBytesSize*2
	maskPrefixLen   = len(keyPrefix) + 4 // show "processor_ak_1234"
	maskSuffixLen   = 4
)

var (
	// ErrKeyAlreadyExists is returned when attempting to add a key that already exists.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNotFound is returned when attempting to operate on a non-existent key.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrClientIDEmpty is returned when the client ID is empty during key generation.
	ErrClientIDEmpty = errors.New("client ID cannot be empty")
	// ErrKeyStringEmpty is returned when the key string is empty during parsing.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat is returned when an API key doesn't match the expected format.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyLength is returned when an API key length is incorrect.
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// APIKey identifies one control-plane client and its permissions. KeyHash
// holds the bcrypt hash; the plaintext key exists only at generation time.
type APIKey struct {
	ID          string     `json:"id"`
	KeyHash     string     `json:"-"`
	ClientID    string     `json:"client_id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

// APIKeyStore defines storage and retrieval for control-plane API keys.
type APIKeyStore interface {
	// FindByKey resolves a plaintext key against the stored hashes.
	FindByKey(ctx context.Context, key string) (*APIKey, bool)
	// Add stores a new API key.
	Add(ctx context.Context, apiKey *APIKey) error
	// Update modifies an existing API key.
	Update(ctx context.Context, apiKey *APIKey) error
	// Delete deactivates an API key.
	Delete(ctx context.Context, keyID string) error
	// ListByClient returns all API keys for a client.
	ListByClient(ctx context.Context, clientID string) ([]*APIKey, error)
}

// Usable reports whether the key is active and unexpired.
func (ak *APIKey) Usable() bool {
	if !ak.Active {
		return false
	}

	if ak.ExpiresAt != nil && time.Now().After(*ak.ExpiresAt) {
		return false
	}

	return true
}

// HasPermission checks if the API key has a specific permission.
func (ak *APIKey) HasPermission(permission string) bool {
	for _, p := range ak.Permissions {
		if p == permission {
			return true
		}
	}

	return false
}

// SecureCompare performs constant-time comparison of two strings to prevent
// timing attacks.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		// Compare against a dummy of the same length to keep timing flat.
		dummy := make([]byte, len(a))
		subtle.ConstantTimeCompare([]byte(a), dummy)

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey masks an API key for logging, showing only the prefix and suffix of
// well-formed keys. Anything else is masked completely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	keyLen := len(key)

	if keyLen == apiKeyLength {
		maskedLen := keyLen - maskPrefixLen - maskSuffixLen

		return key[:maskPrefixLen] + strings.Repeat("*", maskedLen) + key[keyLen-maskSuffixLen:]
	}

	return strings.Repeat("*", keyLen)
}

// GenerateAPIKey creates a new API key for a client: the fixed prefix plus 64
// hex chars of CSPRNG output.
func GenerateAPIKey(clientID string) (string, error) {
	if clientID == "" {
		return "", ErrClientIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)

	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return keyPrefix + hex.EncodeToString(randomBytes), nil
}

// ParseAPIKey extracts and validates the API key from a header value,
// tolerating a "Bearer " prefix.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, keyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
