package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RevocationRepo is the append-only revocation list for refresh tokens.
// Keys are token hashes; entries become irrelevant once the token would
// have expired anyway.
type RevocationRepo interface {
	// Add records the key. Adding an existing key is not an error.
	Add(ctx context.Context, key string, ttl time.Duration) error
	Contains(ctx context.Context, key string) (bool, error)
}

type revocationRepo struct {
	db *sql.DB
}

// NewRevocationRepo creates a Postgres-backed revocation list.
func NewRevocationRepo(db *sql.DB) RevocationRepo {
	return &revocationRepo{db: db}
}

// Add inserts the key with its natural expiry; duplicates are ignored so
// revoking twice stays idempotent.
func (r *revocationRepo) Add(ctx context.Context, key string, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_hash) DO NOTHING
	`, key, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("add revoked token: %w", err)
	}
	return nil
}

// Contains reports whether the key is on the list.
func (r *revocationRepo) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM revoked_tokens WHERE token_hash = $1
	`, key).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return true, nil
}
