package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/accountd/server/internal/logging"
	"github.com/accountd/server/internal/model"
	"github.com/accountd/server/internal/notify"
	"github.com/accountd/server/internal/repo"
	"github.com/google/uuid"
)

// Service orchestrates the account lifecycle and session issuance. It owns
// no state beyond its injected stores; every operation is request-scoped.
type Service struct {
	users       repo.UserRepo
	otps        *OTPLedger
	revocations repo.RevocationRepo
	jwt         *JWTService
	gateway     notify.Gateway
	policy      PasswordPolicy
	log         logging.Logger
}

// NewService wires the service. A nil policy falls back to
// DefaultPasswordPolicy and a nil logger to a no-op one.
func NewService(
	users repo.UserRepo,
	otps *OTPLedger,
	revocations repo.RevocationRepo,
	jwtService *JWTService,
	gateway notify.Gateway,
	policy PasswordPolicy,
	log logging.Logger,
) *Service {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Service{
		users:       users,
		otps:        otps,
		revocations: revocations,
		jwt:         jwtService,
		gateway:     gateway,
		policy:      policy,
		log:         log,
	}
}

// RegisterResult reports a created credential plus whether the verification
// code reached the notification gateway. OTPDelivered false is a degraded
// success, not a failure.
type RegisterResult struct {
	Credential   model.Credential
	OTPDelivered bool
}

// NormalizeEmail lowercases and trims an email address. Every lookup and
// insert goes through this so the uniqueness constraint is case-insensitive
// in practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an inactive credential and kicks off email verification.
// OTP issuance and delivery are best-effort; their failure never rolls back
// the account.
func (s *Service) Register(ctx context.Context, email, password string, profile model.ProfileUpdate) (RegisterResult, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return RegisterResult{}, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if err := s.policy.Check(password); err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %w", ErrDependency, err)
	}

	cred := model.Credential{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     false,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		PhoneNumber:  profile.PhoneNumber,
		AvatarRef:    profile.AvatarRef,
		Gender:       profile.Gender,
		Age:          profile.Age,
		DateOfBirth:  profile.DateOfBirth,
	}
	created, err := s.users.Insert(ctx, cred)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return RegisterResult{}, ErrDuplicateEmail
		}
		return RegisterResult{}, fmt.Errorf("insert credential: %w: %w", ErrDependency, err)
	}

	delivered := s.issueAndDeliver(ctx, created, "email_verification")
	return RegisterResult{Credential: created, OTPDelivered: delivered}, nil
}

// VerifyEmail redeems a code and activates the account. Verifying an
// already-active account succeeds without consuming anything.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (model.Credential, error) {
	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return model.Credential{}, err
	}
	if cred.IsActive {
		return cred, nil
	}

	if err := s.otps.Redeem(ctx, cred.ID, code); err != nil {
		return model.Credential{}, err
	}
	s.log.Info(ctx, "otp redeemed", "user_id", cred.ID, "purpose", "email_verification")

	// Conditional update; losing to a concurrent verification is still
	// success, the account is active either way.
	if _, err := s.users.Activate(ctx, cred.ID); err != nil {
		return model.Credential{}, fmt.Errorf("activate: %w: %w", ErrDependency, err)
	}
	s.log.Info(ctx, "account activated", "user_id", cred.ID)

	cred.IsActive = true
	return cred, nil
}

// CheckOTP reports code validity without consuming it.
func (s *Service) CheckOTP(ctx context.Context, email, code string) (bool, error) {
	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return s.otps.Validate(ctx, cred.ID, code)
}

// RequestPasswordReset issues a fresh reset code regardless of the account's
// active state. The returned bool reports delivery, which is best-effort.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return s.issueAndDeliver(ctx, cred, "password_reset"), nil
}

// ConfirmPasswordReset redeems a code and replaces the password hash. The
// active flag is left untouched.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.policy.Check(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	if err := s.otps.Redeem(ctx, cred.ID, code); err != nil {
		return err
	}
	s.log.Info(ctx, "otp redeemed", "user_id", cred.ID, "purpose", "password_reset")

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDependency, err)
	}
	if err := s.users.UpdatePassword(ctx, cred.ID, hash); err != nil {
		return fmt.Errorf("update password: %w: %w", ErrDependency, err)
	}
	s.log.Info(ctx, "password changed", "user_id", cred.ID, "via", "reset")
	return nil
}

// ChangePassword replaces the password for an authenticated credential after
// re-checking the old one. New/confirm mismatch is the facade's concern.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	cred, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(cred.PasswordHash, oldPassword) {
		return ErrWrongPassword
	}
	if err := s.policy.Check(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDependency, err)
	}
	if err := s.users.UpdatePassword(ctx, cred.ID, hash); err != nil {
		return fmt.Errorf("update password: %w: %w", ErrDependency, err)
	}
	s.log.Info(ctx, "password changed", "user_id", cred.ID, "via", "change")
	return nil
}

// Login checks the password and account state and mints a token pair.
// Unknown email and wrong password are indistinguishable. An unverified
// account gets a courtesy re-issue of its verification code.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, model.Credential, error) {
	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, model.Credential{}, ErrInvalidCredentials
		}
		return TokenPair{}, model.Credential{}, err
	}
	if !CheckPassword(cred.PasswordHash, password) {
		return TokenPair{}, model.Credential{}, ErrInvalidCredentials
	}
	if cred.IsDisabled {
		return TokenPair{}, model.Credential{}, ErrAccountNotActive
	}
	if !cred.IsActive {
		s.issueAndDeliver(ctx, cred, "email_verification")
		return TokenPair{}, model.Credential{}, ErrAccountNotActive
	}

	access, err := s.jwt.SignAccessToken(cred.ID)
	if err != nil {
		return TokenPair{}, model.Credential{}, fmt.Errorf("%w: %w", ErrDependency, err)
	}
	refresh, err := s.jwt.SignRefreshToken(cred.ID)
	if err != nil {
		return TokenPair{}, model.Credential{}, fmt.Errorf("%w: %w", ErrDependency, err)
	}

	now := time.Now()
	if err := s.users.SetLastLogin(ctx, cred.ID, now); err != nil {
		s.log.Warn(ctx, "set last login failed", "user_id", cred.ID, "error", err)
	} else {
		cred.LastLoginAt = &now
	}
	s.log.Info(ctx, "login", "user_id", cred.ID)

	return TokenPair{AccessToken: access, RefreshToken: refresh}, cred, nil
}

// Refresh mints a new access token from a refresh token. The revocation
// list is consulted before anything else; a revoked token never mints again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	revoked, err := s.revocations.Contains(ctx, RevocationKey(refreshToken))
	if err != nil {
		return "", fmt.Errorf("revocation check: %w: %w", ErrDependency, err)
	}
	if revoked {
		return "", ErrTokenRevoked
	}

	claims, err := s.jwt.VerifyToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}

	access, err := s.jwt.SignAccessToken(claims.UserID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDependency, err)
	}
	return access, nil
}

// Logout adds the refresh token to the revocation list. Revoking twice is
// not an error, and an already-expired token is a no-op success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.VerifyToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revocations.Add(ctx, RevocationKey(refreshToken), ttl); err != nil {
		return fmt.Errorf("revoke token: %w: %w", ErrDependency, err)
	}
	s.log.Info(ctx, "token revoked", "user_id", claims.UserID)
	return nil
}

// GetProfile returns the credential for an authenticated user.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (model.Credential, error) {
	return s.findByID(ctx, userID)
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd model.ProfileUpdate) (model.Credential, error) {
	cred, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("update profile: %w: %w", ErrDependency, err)
	}
	return cred, nil
}

// issueAndDeliver issues a code and hands it to the gateway. Both steps are
// best-effort; the code is never logged.
func (s *Service) issueAndDeliver(ctx context.Context, cred model.Credential, purpose string) bool {
	code, rec, err := s.otps.Issue(ctx, cred.ID)
	if err != nil {
		s.log.Error(ctx, "otp issue failed", "user_id", cred.ID, "purpose", purpose, "error", err)
		return false
	}
	s.log.Info(ctx, "otp issued", "user_id", cred.ID, "purpose", purpose, "expires_at", rec.ExpiresAt)

	subject, body := notify.OTPEmail(purpose, code, rec.ExpiresAt.Sub(rec.CreatedAt))
	if err := s.gateway.Send(ctx, cred.Email, subject, body); err != nil {
		s.log.Warn(ctx, "notification failed", "email", MaskEmail(cred.Email), "purpose", purpose, "error", err)
		return false
	}
	return true
}

func (s *Service) findByEmail(ctx context.Context, email string) (model.Credential, error) {
	cred, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("find by email: %w: %w", ErrDependency, err)
	}
	return cred, nil
}

func (s *Service) findByID(ctx context.Context, id uuid.UUID) (model.Credential, error) {
	cred, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("find by id: %w: %w", ErrDependency, err)
	}
	return cred, nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

// MaskEmail masks an address for logging (e.g. ab****@example.com).
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "****"
	}
	local := email[:at]
	if len(local) <= 2 {
		return "****" + email[at:]
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + email[at:]
}
