// Package apikeys issues and validates programmatic credentials. A key's raw
// secret exists only in the creation response; the store keeps a SHA-256
// hash plus a short prefix for display. Validation applies expiry, revocation
// and scope checks before the caller ever reaches tenant data.
package apikeys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/slateboards/slate/pkg/apperrors"
)

// Scope names what a key may do.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// Key is a stored API key. SecretOnce carries the raw secret on creation
// only and is never persisted or listed.
type Key struct {
	ID         int64      `json:"id"`
	OrgID      string     `json:"org_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Scopes     []string   `json:"scopes"`
	CreatedBy  int64      `json:"created_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SecretOnce string     `json:"secret,omitempty"`
}

// HasScope reports whether the key carries a scope.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Store persists API keys.
type Store struct {
	db *sql.DB
}

// NewStore creates an API key store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create mints a key for an organization. The returned Key carries the raw
// secret in SecretOnce; it cannot be recovered afterwards.
func (s *Store) Create(ctx context.Context, orgID, name string, scopes []string, createdBy int64, ttl time.Duration) (*Key, error) {
	secret, hash, prefix, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	key := &Key{
		OrgID:      orgID,
		Name:       name,
		Prefix:     prefix,
		Scopes:     scopes,
		CreatedBy:  createdBy,
		SecretOnce: secret,
	}

	var expiresAt interface{}
	if ttl > 0 {
		t := time.Now().Add(ttl)
		key.ExpiresAt = &t
		expiresAt = t
	}

	query := `
		INSERT INTO api_keys (org_id, name, key_hash, key_prefix, scopes, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query, orgID, name, hash, prefix, pq.Array(scopes), createdBy, expiresAt).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	return key, nil
}

// Validate resolves a presented secret to its key, rejecting revoked and
// expired keys. It also stamps last_used_at; a failure there is not fatal,
// the timestamp is best-effort.
func (s *Store) Validate(ctx context.Context, secret string) (*Key, error) {
	if err := ValidateFormat(secret); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrUnauthenticated)
	}

	query := `
		SELECT id, org_id, name, key_prefix, scopes, COALESCE(created_by, 0), expires_at, last_used_at, revoked_at, created_at
		FROM api_keys
		WHERE key_hash = $1
	`
	key := &Key{}
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, HashSecret(secret)).Scan(
		&key.ID, &key.OrgID, &key.Name, &key.Prefix, pq.Array(&key.Scopes),
		&key.CreatedBy, &expiresAt, &lastUsedAt, &revokedAt, &key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}

	if key.RevokedAt != nil {
		return nil, fmt.Errorf("api key revoked: %w", apperrors.ErrUnauthenticated)
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, fmt.Errorf("api key expired: %w", apperrors.ErrUnauthenticated)
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, key.ID)

	return key, nil
}

// List returns an organization's keys, newest first, without hashes.
func (s *Store) List(ctx context.Context, orgID string) ([]*Key, error) {
	query := `
		SELECT id, org_id, name, key_prefix, scopes, COALESCE(created_by, 0), expires_at, last_used_at, revoked_at, created_at
		FROM api_keys
		WHERE org_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*Key
	for rows.Next() {
		key := &Key{}
		var expiresAt, lastUsedAt, revokedAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.OrgID, &key.Name, &key.Prefix, pq.Array(&key.Scopes),
			&key.CreatedBy, &expiresAt, &lastUsedAt, &revokedAt, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if expiresAt.Valid {
			key.ExpiresAt = &expiresAt.Time
		}
		if lastUsedAt.Valid {
			key.LastUsedAt = &lastUsedAt.Time
		}
		if revokedAt.Valid {
			key.RevokedAt = &revokedAt.Time
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Revoke marks a key unusable. Revocation is permanent and idempotent on
// already-revoked keys.
func (s *Store) Revoke(ctx context.Context, orgID string, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND org_id = $2 AND revoked_at IS NULL`,
		id, orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// DeleteExpired removes keys whose expiry passed more than the grace period
// ago. Run from the background sweep.
func (s *Store) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < $1`,
		time.Now().Add(-grace),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired api keys: %w", err)
	}
	return result.RowsAffected()
}
