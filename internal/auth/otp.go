package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/accountd/server/internal/model"
	"github.com/accountd/server/internal/repo"
	"github.com/google/uuid"
)

const (
	// OTPLength is the number of digits in an issued code.
	OTPLength = 6
	// OTPTTL is the default validity window of an issued code.
	OTPTTL = 10 * time.Minute
)

// OTPLedger issues, validates and redeems one-time passcodes. Codes are
// stored as salted SHA-256 hashes; the plaintext exists only in the Issue
// return value so the caller can deliver it.
type OTPLedger struct {
	otpRepo repo.OtpRepo
	salt    string
	ttl     time.Duration
	now     func() time.Time
}

// NewOTPLedger creates a ledger over the given store. A non-positive ttl
// falls back to OTPTTL.
func NewOTPLedger(otpRepo repo.OtpRepo, salt string, ttl time.Duration) *OTPLedger {
	if ttl <= 0 {
		ttl = OTPTTL
	}
	return &OTPLedger{otpRepo: otpRepo, salt: salt, ttl: ttl, now: time.Now}
}

// Issue generates a fresh code for the user and persists its record.
// Prior unexpired codes are left outstanding; issuance never deduplicates.
func (l *OTPLedger) Issue(ctx context.Context, userID uuid.UUID) (string, model.OTPRecord, error) {
	code, err := generateOTPCode()
	if err != nil {
		return "", model.OTPRecord{}, fmt.Errorf("generate otp: %w", err)
	}

	now := l.now()
	rec := model.OTPRecord{
		ID:        uuid.New(),
		UserID:    userID,
		CodeHash:  hashOTPHex(userID, code, l.salt),
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.otpRepo.Insert(ctx, rec); err != nil {
		return "", model.OTPRecord{}, fmt.Errorf("insert otp: %w: %w", ErrDependency, err)
	}
	return code, rec, nil
}

// Validate reports whether a matching unused unexpired code exists for the
// user. It never mutates the record.
func (l *OTPLedger) Validate(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	rec, err := l.otpRepo.FindCandidate(ctx, userID, hashOTPHex(userID, code, l.salt))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find otp: %w: %w", ErrDependency, err)
	}
	return rec.Valid(l.now()), nil
}

// Redeem atomically consumes a matching valid code. The used flag is flipped
// with compare-and-set store semantics, so concurrent redemptions of the
// same code succeed at most once.
func (l *OTPLedger) Redeem(ctx context.Context, userID uuid.UUID, code string) error {
	rec, err := l.otpRepo.FindCandidate(ctx, userID, hashOTPHex(userID, code, l.salt))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidOrExpiredCode
		}
		return fmt.Errorf("find otp: %w: %w", ErrDependency, err)
	}
	if !rec.Valid(l.now()) {
		return ErrInvalidOrExpiredCode
	}

	won, err := l.otpRepo.MarkUsed(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("mark otp used: %w: %w", ErrDependency, err)
	}
	if !won {
		// Lost the race to a concurrent redemption.
		return ErrInvalidOrExpiredCode
	}
	return nil
}

// generateOTPCode returns a fixed-length numeric code from crypto/rand.
func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPLength, n), nil
}

// hashOTPHex returns SHA-256(userID:code:salt) as hex for storage and lookup.
func hashOTPHex(userID uuid.UUID, code, salt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", userID, code, salt)))
	return hex.EncodeToString(sum[:])
}
