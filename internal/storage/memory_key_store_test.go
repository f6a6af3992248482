package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAPIKey builds a stored key and returns it with its plaintext.
func newTestAPIKey(t *testing.T, id, clientID string) (*APIKey, string) {
	t.Helper()

	plaintext, err := GenerateAPIKey(clientID)
	require.NoError(t, err)

	hash, err := HashAPIKey(plaintext)
	require.NoError(t, err)

	return &APIKey{
		ID:          id,
		KeyHash:     hash,
		ClientID:    clientID,
		Name:        "test key",
		Permissions: []string{"jobs:write"},
		CreatedAt:   time.Now().UTC(),
		Active:      true,
	}, plaintext
}

func TestInMemoryKeyStoreAddAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	apiKey, plaintext := newTestAPIKey(t, "key-1", "n8n")
	require.NoError(t, store.Add(ctx, apiKey))

	found, ok := store.FindByKey(ctx, plaintext)
	require.True(t, ok)
	assert.Equal(t, "key-1", found.ID)
	assert.Equal(t, "n8n", found.ClientID)

	_, ok = store.FindByKey(ctx, "processor_ak_wrong")
	assert.False(t, ok)
}

func TestInMemoryKeyStoreAddDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	apiKey, _ := newTestAPIKey(t, "key-1", "n8n")
	require.NoError(t, store.Add(ctx, apiKey))
	require.ErrorIs(t, store.Add(ctx, apiKey), ErrKeyAlreadyExists)
	require.ErrorIs(t, store.Add(ctx, nil), ErrKeyNil)
}

func TestInMemoryKeyStoreInactiveKeyNeverAuthenticates(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	apiKey, plaintext := newTestAPIKey(t, "key-1", "n8n")
	apiKey.Active = false
	require.NoError(t, store.Add(ctx, apiKey))

	_, ok := store.FindByKey(ctx, plaintext)
	assert.False(t, ok)
}

func TestInMemoryKeyStoreExpiredKeyNeverAuthenticates(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	past := time.Now().Add(-time.Minute)
	apiKey, plaintext := newTestAPIKey(t, "key-1", "n8n")
	apiKey.ExpiresAt = &past
	require.NoError(t, store.Add(ctx, apiKey))

	_, ok := store.FindByKey(ctx, plaintext)
	assert.False(t, ok)
}

func TestInMemoryKeyStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	apiKey, _ := newTestAPIKey(t, "key-1", "n8n")
	require.NoError(t, store.Add(ctx, apiKey))

	apiKey.Name = "renamed"
	apiKey.ClientID = "scheduler"
	require.NoError(t, store.Update(ctx, apiKey))

	keys, err := store.ListByClient(ctx, "scheduler")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "renamed", keys[0].Name)

	// The old client no longer lists the key.
	keys, err = store.ListByClient(ctx, "n8n")
	require.NoError(t, err)
	assert.Empty(t, keys)

	missing, _ := newTestAPIKey(t, "missing", "n8n")
	require.ErrorIs(t, store.Update(ctx, missing), ErrKeyNotFound)
}

func TestInMemoryKeyStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	apiKey, plaintext := newTestAPIKey(t, "key-1", "n8n")
	require.NoError(t, store.Add(ctx, apiKey))

	require.NoError(t, store.Delete(ctx, "key-1"))
	require.ErrorIs(t, store.Delete(ctx, "key-1"), ErrKeyNotFound)

	_, ok := store.FindByKey(ctx, plaintext)
	assert.False(t, ok)
}

func TestInMemoryKeyStoreListByClient(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryKeyStore()

	first, _ := newTestAPIKey(t, "key-1", "n8n")
	second, _ := newTestAPIKey(t, "key-2", "n8n")
	other, _ := newTestAPIKey(t, "key-3", "scheduler")

	require.NoError(t, store.Add(ctx, first))
	require.NoError(t, store.Add(ctx, second))
	require.NoError(t, store.Add(ctx, other))

	keys, err := store.ListByClient(ctx, "n8n")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = store.ListByClient(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
