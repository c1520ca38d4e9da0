package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/accountd/server/internal/model"
	"github.com/google/uuid"
)

// OtpRepo defines the OTP ledger store contract. Records are append-only;
// the only mutation is MarkUsed, which must be atomic.
type OtpRepo interface {
	Insert(ctx context.Context, rec model.OTPRecord) error
	// FindCandidate returns the most recently issued record matching the
	// user and code hash, used or not. Validity is the caller's concern.
	FindCandidate(ctx context.Context, userID uuid.UUID, codeHash string) (model.OTPRecord, error)
	// MarkUsed flips used false->true. Returns false when the record was
	// already used, so concurrent redemptions have at most one winner.
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	// CountOutstanding returns the number of unused unexpired records for
	// the user (audit/introspection only).
	CountOutstanding(ctx context.Context, userID uuid.UUID) (int, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a Postgres-backed OtpRepo.
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Insert stores a new OTP record.
func (r *otpRepo) Insert(ctx context.Context, rec model.OTPRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otps (id, user_id, code_hash, used, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.UserID, rec.CodeHash, rec.Used, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	return nil
}

// FindCandidate picks the newest unused match first; duplicate codes across
// re-issues resolve deterministically to the most recent issuance.
func (r *otpRepo) FindCandidate(ctx context.Context, userID uuid.UUID, codeHash string) (model.OTPRecord, error) {
	var rec model.OTPRecord
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, code_hash, used, created_at, expires_at
		FROM otps
		WHERE user_id = $1 AND code_hash = $2
		ORDER BY used ASC, (expires_at > now()) DESC, created_at DESC
		LIMIT 1
	`, userID, codeHash).Scan(
		&idStr,
		&userIDStr,
		&rec.CodeHash,
		&rec.Used,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OTPRecord{}, ErrNotFound
		}
		return model.OTPRecord{}, fmt.Errorf("find otp candidate: %w", err)
	}
	if rec.ID, err = uuid.Parse(idStr); err != nil {
		return model.OTPRecord{}, fmt.Errorf("parse otp ID: %w", err)
	}
	if rec.UserID, err = uuid.Parse(userIDStr); err != nil {
		return model.OTPRecord{}, fmt.Errorf("parse otp user ID: %w", err)
	}
	return rec, nil
}

// MarkUsed is a conditional update; rows-affected decides the winner.
func (r *otpRepo) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otps SET used = true WHERE id = $1 AND used = false
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark otp used: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// CountOutstanding counts redeemable records for the user.
func (r *otpRepo) CountOutstanding(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otps
		WHERE user_id = $1 AND used = false AND expires_at > now()
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count outstanding otps: %w", err)
	}
	return count, nil
}
