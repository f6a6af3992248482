package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	keyCreated = "created"
	keyUpdated = "updated"
	keyDeleted = "deleted"
)

// PersistentKeyStore implements APIKeyStore with a PostgreSQL backend.
// Keys are stored as bcrypt hashes; the plaintext exists only at generation
// time in the provisioning caller.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time check that the store satisfies the contract.
var _ APIKeyStore = (*PersistentKeyStore)(nil)

// NewPersistentKeyStore creates a PostgreSQL key store over an established
// connection.
func NewPersistentKeyStore(conn *Connection, logger *slog.Logger) *PersistentKeyStore {
	return &PersistentKeyStore{conn: conn, logger: logger}
}

// FindByKey resolves a plaintext key against the stored bcrypt hashes.
// All active keys are scanned and compared in memory; acceptable while the
// key population stays small (bcrypt dominates at ~60ms per candidate).
func (s *PersistentKeyStore) FindByKey(ctx context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	rows, err := s.conn.DB().QueryContext(ctx, `
		SELECT id, key_hash, client_id, name, permissions, created_at, expires_at, active
		FROM api_keys
		WHERE active = TRUE`)
	if err != nil {
		s.logger.Error("failed to query active API keys", slog.String("error", err.Error()))

		return nil, false
	}

	defer func() { _ = rows.Close() }()

	var found *APIKey

	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			continue
		}

		if !apiKey.Usable() {
			continue
		}

		if CompareAPIKeyHash(apiKey.KeyHash, key) {
			found = apiKey

			break
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("failed to iterate API keys", slog.String("error", err.Error()))

		return nil, false
	}

	return found, found != nil
}

// Add stores a new API key. The caller hashes the plaintext with HashAPIKey
// before constructing the APIKey; only the hash reaches the database. Audit
// logging is synchronous and best-effort.
func (s *PersistentKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.KeyHash == "" {
		return ErrKeyNil
	}

	permissionsJSON, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	_, err = s.conn.DB().ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, client_id, name, permissions, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		apiKey.ID, apiKey.KeyHash, apiKey.ClientID, apiKey.Name,
		permissionsJSON, apiKey.CreatedAt, apiKey.ExpiresAt, apiKey.Active)
	if err != nil {
		return fmt.Errorf("failed to insert API key: %w", err)
	}

	s.auditLog(ctx, keyCreated, apiKey)

	return nil
}

// Update modifies an existing API key's name, permissions, active status, and
// expiration. The key hash itself is immutable.
func (s *PersistentKeyStore) Update(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.ID == "" {
		return ErrKeyNotFound
	}

	permissionsJSON, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	result, err := s.conn.DB().ExecContext(ctx, `
		UPDATE api_keys
		SET name = $1, permissions = $2, active = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $5`,
		apiKey.Name, permissionsJSON, apiKey.Active, apiKey.ExpiresAt, apiKey.ID)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	s.auditLog(ctx, keyUpdated, apiKey)

	return nil
}

// Delete soft-deletes an API key by setting active=FALSE. Rows are never
// physically removed, preserving the audit trail.
func (s *PersistentKeyStore) Delete(ctx context.Context, keyID string) error {
	if keyID == "" {
		return ErrKeyNotFound
	}

	result, err := s.conn.DB().ExecContext(ctx,
		`UPDATE api_keys SET active = FALSE, updated_at = NOW() WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	s.auditLog(ctx, keyDeleted, &APIKey{ID: keyID})

	return nil
}

// ListByClient returns all active API keys for a specific client, newest
// first. Key hashes are masked before leaving the store.
func (s *PersistentKeyStore) ListByClient(ctx context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	rows, err := s.conn.DB().QueryContext(ctx, `
		SELECT id, key_hash, client_id, name, permissions, created_at, expires_at, active
		FROM api_keys
		WHERE client_id = $1 AND active = TRUE
		ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}

	defer func() { _ = rows.Close() }()

	keys := []*APIKey{}

	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			continue
		}

		apiKey.KeyHash = MaskKey(apiKey.KeyHash)
		keys = append(keys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return keys, nil
}

// scanAPIKey reads one api_keys row.
func scanAPIKey(row rowScanner) (*APIKey, error) {
	var (
		apiKey          APIKey
		permissionsJSON []byte
	)

	err := row.Scan(&apiKey.ID, &apiKey.KeyHash, &apiKey.ClientID, &apiKey.Name,
		&permissionsJSON, &apiKey.CreatedAt, &apiKey.ExpiresAt, &apiKey.Active)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permissionsJSON, &apiKey.Permissions); err != nil {
		return nil, err
	}

	return &apiKey, nil
}

// permissionsToJSON converts a permissions slice to JSON for JSONB storage.
func permissionsToJSON(permissions []string) ([]byte, error) {
	if permissions == nil {
		permissions = []string{}
	}

	return json.Marshal(permissions)
}

// auditLog writes an audit entry for a key operation. Best-effort: failures
// are logged, never propagated, so key management keeps working when the
// audit table is unavailable.
func (s *PersistentKeyStore) auditLog(ctx context.Context, operation string, apiKey *APIKey) {
	_, err := s.conn.DB().ExecContext(ctx, `
		INSERT INTO api_key_audit_log (api_key_id, operation, client_id, metadata)
		VALUES ($1, $2, $3, '{}')`,
		apiKey.ID, operation, apiKey.ClientID)
	if err != nil {
		s.logger.Error("failed to write an audit log entry for API key operation",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
}
