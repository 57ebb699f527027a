// Package webhook provides the public intake surface: lead submissions and
// inbound response notifications from channel providers, authenticated by
// API key.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var ErrKeyNotFound = errors.New("webhook API key not found")

const keyPrefixLen = 12

// APIKey is a stored webhook credential. Only the bcrypt hash of the
// plaintext key is persisted; the prefix is kept for lookup.
type APIKey struct {
	ID        uuid.UUID
	Name      string
	KeyPrefix string
	KeyHash   string
	Active    bool
	CreatedAt time.Time
}

// Repository provides data access for webhook API keys.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateKey creates a new random API key. The plaintext is returned only
// once; only the bcrypt hash is stored.
func GenerateKey() (plaintext, hash, prefix string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", err
	}
	plaintext = "owk_" + hex.EncodeToString(raw)
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", err
	}
	return plaintext, string(digest), plaintext[:keyPrefixLen], nil
}

// Create stores a new API key record.
func (r *Repository) Create(ctx context.Context, name, hash, prefix string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_keys (name, key_prefix, key_hash)
		VALUES ($1, $2, $3)
		RETURNING id, name, key_prefix, key_hash, active, created_at
	`, name, prefix, hash).Scan(
		&key.ID, &key.Name, &key.KeyPrefix, &key.KeyHash, &key.Active, &key.CreatedAt)
	return key, err
}

// VerifyKey resolves a plaintext API key to its stored record. The prefix
// narrows the lookup to one row; the bcrypt comparison does the real check.
func (r *Repository) VerifyKey(ctx context.Context, plaintext string) (APIKey, error) {
	if len(plaintext) < keyPrefixLen {
		return APIKey{}, ErrKeyNotFound
	}

	var key APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, key_prefix, key_hash, active, created_at
		FROM webhook_keys
		WHERE key_prefix = $1 AND active = true
	`, plaintext[:keyPrefixLen]).Scan(
		&key.ID, &key.Name, &key.KeyPrefix, &key.KeyHash, &key.Active, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrKeyNotFound
	}
	if err != nil {
		return APIKey{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) != nil {
		return APIKey{}, ErrKeyNotFound
	}
	return key, nil
}

// List returns all API keys, newest first.
func (r *Repository) List(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, key_prefix, key_hash, active, created_at
		FROM webhook_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyPrefix, &key.KeyHash,
			&key.Active, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates an API key.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE webhook_keys SET active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}
