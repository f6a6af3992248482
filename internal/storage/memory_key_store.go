package storage

import (
	"context"
	"sync"
)

// InMemoryKeyStore provides thread-safe in-memory storage for API keys.
// Used in tests and for single-process development setups; production runs
// on PersistentKeyStore.
type InMemoryKeyStore struct {
	// keysByID maps key IDs to APIKey structs
	keysByID map[string]*APIKey
	// keysByClient maps client IDs to slices of APIKey structs
	keysByClient map[string][]*APIKey
	// mutex protects concurrent access to both maps
	mutex sync.RWMutex
}

// Compile-time check that the store satisfies the contract.
var _ APIKeyStore = (*InMemoryKeyStore)(nil)

// NewInMemoryKeyStore creates a new thread-safe in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keysByID:     make(map[string]*APIKey),
		keysByClient: make(map[string][]*APIKey),
	}
}

// FindByKey resolves a plaintext key against the stored bcrypt hashes. Only
// usable keys participate, so revoked and expired keys never authenticate.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, apiKey := range s.keysByID {
		if !apiKey.Usable() {
			continue
		}

		if CompareAPIKeyHash(apiKey.KeyHash, key) {
			keyCopy := *apiKey

			return &keyCopy, true
		}
	}

	return nil, false
}

// Add stores a new API key.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	// Store a copy to prevent external modification.
	keyCopy := *apiKey

	s.keysByID[keyCopy.ID] = &keyCopy
	s.keysByClient[keyCopy.ClientID] = append(s.keysByClient[keyCopy.ClientID], &keyCopy)

	return nil
}

// Update modifies an existing API key.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[apiKey.ID]
	if !exists {
		return ErrKeyNotFound
	}

	s.removeFromClientMap(existing.ClientID, existing.ID)

	keyCopy := *apiKey

	s.keysByID[keyCopy.ID] = &keyCopy
	s.keysByClient[keyCopy.ClientID] = append(s.keysByClient[keyCopy.ClientID], &keyCopy)

	return nil
}

// Delete removes an API key.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	delete(s.keysByID, keyID)
	s.removeFromClientMap(existing.ClientID, keyID)

	return nil
}

// ListByClient returns all API keys for a specific client.
func (s *InMemoryKeyStore) ListByClient(_ context.Context, clientID string) ([]*APIKey, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys, exists := s.keysByClient[clientID]
	if !exists {
		return []*APIKey{}, nil
	}

	// Return copies to prevent external modification.
	result := make([]*APIKey, len(keys))
	for i, key := range keys {
		keyCopy := *key
		result[i] = &keyCopy
	}

	return result, nil
}

// removeFromClientMap removes a key from the client map by key ID.
// Caller must hold the write lock.
func (s *InMemoryKeyStore) removeFromClientMap(clientID, keyID string) {
	keys := s.keysByClient[clientID]
	for i, key := range keys {
		if key.ID == keyID {
			s.keysByClient[clientID] = append(keys[:i], keys[i+1:]...)

			break
		}
	}

	if len(s.keysByClient[clientID]) == 0 {
		delete(s.keysByClient, clientID)
	}
}
