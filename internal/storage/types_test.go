package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey("n8n-orchestrator")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "processor_ak_"))
	assert.Len(t, key, apiKeyLength)

	// Two generations never collide.
	other, err := GenerateAPIKey("n8n-orchestrator")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestGenerateAPIKeyEmptyClient(t *testing.T) {
	_, err := GenerateAPIKey("")
	require.ErrorIs(t, err, ErrClientIDEmpty)
}

func TestParseAPIKey(t *testing.T) {
	key, err := GenerateAPIKey("client")
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain key", input: key, want: key},
		{name: "bearer prefix", input: "Bearer " + key, want: key},
		{name: "empty", input: "", wantErr: ErrKeyStringEmpty},
		{name: "wrong prefix", input: "other_ak_" + strings.Repeat("a", 64), wantErr: ErrInvalidKeyFormat},
		{name: "truncated", input: key[:40], wantErr: ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAPIKey(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskKey(t *testing.T) {
	key, err := GenerateAPIKey("client")
	require.NoError(t, err)

	masked := MaskKey(key)
	assert.Len(t, masked, len(key))
	assert.True(t, strings.HasPrefix(masked, key[:maskPrefixLen]))
	assert.True(t, strings.HasSuffix(masked, key[len(key)-maskSuffixLen:]))
	assert.Contains(t, masked, "****")

	// Non-standard lengths are masked completely.
	assert.Equal(t, "*****", MaskKey("short"))
	assert.Empty(t, MaskKey(""))
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("abc", "abc"))
	assert.False(t, SecureCompare("abc", "abd"))
	assert.False(t, SecureCompare("abc", "abcd"))
	assert.True(t, SecureCompare("", ""))
}

func TestAPIKeyUsable(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		key  APIKey
		want bool
	}{
		{name: "active without expiry", key: APIKey{Active: true}, want: true},
		{name: "inactive", key: APIKey{Active: false}, want: false},
		{name: "expired", key: APIKey{Active: true, ExpiresAt: &past}, want: false},
		{name: "not yet expired", key: APIKey{Active: true, ExpiresAt: &future}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Usable())
		})
	}
}

func TestAPIKeyHasPermission(t *testing.T) {
	key := APIKey{Permissions: []string{"jobs:write", "products:read"}}

	assert.True(t, key.HasPermission("jobs:write"))
	assert.False(t, key.HasPermission("keys:admin"))
}
