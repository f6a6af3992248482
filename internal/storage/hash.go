package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Cost 10 lands around 60ms per hash, slow enough to blunt brute force
	// without stalling key management endpoints.
	bcryptCost  = 10
	bcryptLimit = 72
)

// bcryptInput prepares a key for bcrypt. Keys longer than bcrypt's 72-byte
// limit are pre-hashed with SHA-256; generated keys are 77 chars, so this is
// the normal path.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		sum := sha256.Sum256([]byte(apiKey))

		return sum[:]
	}

	return []byte(apiKey)
}

// HashAPIKey generates a bcrypt hash of the API key for storage. The
// plaintext key is never persisted.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash checks a plaintext key against a stored bcrypt hash.
// False on any error condition: empty inputs, malformed hash, mismatch.
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}
