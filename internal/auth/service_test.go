package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/server/internal/model"
	"github.com/accountd/server/internal/tests"
)

type serviceFixture struct {
	svc     *Service
	users   *tests.UserStore
	otps    *tests.OtpStore
	ledger  *OTPLedger
	revoked *tests.RevocationList
	gateway *tests.GatewayRecorder
	jwt     *JWTService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	users := tests.NewUserStore()
	otps := tests.NewOtpStore()
	revoked := tests.NewRevocationList()
	gateway := tests.NewGatewayRecorder()
	ledger := NewOTPLedger(otps, "test-salt", 10*time.Minute)
	jwtService := NewJWTService("test-secret", time.Minute, time.Hour)
	svc := NewService(users, ledger, revoked, jwtService, gateway, nil, nil)
	return &serviceFixture{
		svc:     svc,
		users:   users,
		otps:    otps,
		ledger:  ledger,
		revoked: revoked,
		gateway: gateway,
		jwt:     jwtService,
	}
}

var codePattern = regexp.MustCompile(`\d{6}`)

// lastCode extracts the most recently delivered OTP from the fake gateway.
func (f *serviceFixture) lastCode(t *testing.T) string {
	t.Helper()
	sent := f.gateway.Sent()
	require.NotEmpty(t, sent, "gateway should have received a message")
	code := codePattern.FindString(sent[len(sent)-1].Body)
	require.NotEmpty(t, code, "message body should contain a code")
	return code
}

func TestRegister_createsInactiveCredentialWithOneOTP(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "A@X.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)

	assert.True(t, result.OTPDelivered)
	assert.False(t, result.Credential.IsActive, "new credential must be inactive")
	assert.Equal(t, "a@x.com", result.Credential.Email, "email must be case-normalized")
	assert.NotEqual(t, "Secr3tPass", result.Credential.PasswordHash)

	assert.Len(t, f.otps.All(result.Credential.ID), 1, "exactly one OTP issued")
	assert.Len(t, f.gateway.Sent(), 1, "exactly one notification sent")
}

func TestRegister_gatewayFailureIsDegradedSuccess(t *testing.T) {
	f := newServiceFixture(t)
	f.gateway.Err = errors.New("smtp unreachable")

	result, err := f.svc.Register(context.Background(), "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err, "notification failure must not fail registration")
	assert.False(t, result.OTPDelivered)

	// Account and OTP record both exist despite the failed delivery.
	_, err = f.users.GetByEmail(context.Background(), "a@x.com")
	assert.NoError(t, err)
	assert.Len(t, f.otps.All(result.Credential.ID), 1)
}

func TestRegister_duplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "A@x.com ", "Other3Pass", model.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegister_weakPassword(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), "a@x.com", "short", model.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestVerifyEmail_fullScenario(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)
	code := f.lastCode(t)

	// Wrong code: no mutation, account stays inactive.
	_, err = f.svc.VerifyEmail(ctx, "a@x.com", "000000")
	if code == "000000" {
		t.Skip("generated code collided with the wrong-code probe")
	}
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	cred, _ := f.users.GetByEmail(ctx, "a@x.com")
	assert.False(t, cred.IsActive)

	// Correct code activates.
	verified, err := f.svc.VerifyEmail(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, verified.IsActive)
	cred, _ = f.users.GetByEmail(ctx, "a@x.com")
	assert.True(t, cred.IsActive)

	// Re-verifying is an idempotent success and consumes nothing.
	callsBefore := f.otps.MarkUsedCalls
	verified, err = f.svc.VerifyEmail(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, verified.IsActive)
	assert.Equal(t, callsBefore, f.otps.MarkUsedCalls, "no redemption attempted once active")
}

func TestVerifyEmail_unknownEmail(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.VerifyEmail(context.Background(), "nobody@x.com", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyEmail_expiredCodeFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)
	code := f.lastCode(t)

	f.otps.Expire(result.Credential.ID)

	_, err = f.svc.VerifyEmail(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	valid, err := f.svc.CheckOTP(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.False(t, valid, "expired code must never validate")
}

func TestCheckOTP_sideEffectFree(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)
	code := f.lastCode(t)

	for i := 0; i < 3; i++ {
		valid, err := f.svc.CheckOTP(ctx, "a@x.com", code)
		require.NoError(t, err)
		assert.True(t, valid, "validation must not consume the code")
	}
	assert.Zero(t, f.otps.MarkUsedCalls)
}

func TestRedeem_concurrentAttemptsExactlyOneWins(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)
	code := f.lastCode(t)

	const attempts = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.ledger.Redeem(ctx, result.Credential.ID, code); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent redemption may win")
}

func TestLogin_success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerActive(t, "a@x.com", "Secr3tPass")

	pair, cred, err := f.svc.Login(ctx, "a@x.com", "Secr3tPass")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotNil(t, cred.LastLoginAt, "successful login stamps last_login")

	claims, err := f.jwt.VerifyToken(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, cred.ID, claims.UserID, "tokens bind to the credential ID")
}

func TestLogin_uniformInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerActive(t, "a@x.com", "Secr3tPass")

	_, _, errUnknown := f.svc.Login(ctx, "nobody@x.com", "Secr3tPass")
	_, _, errWrongPw := f.svc.Login(ctx, "a@x.com", "WrongPass1")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error(), "unknown email and wrong password must be indistinguishable")
}

func TestLogin_inactiveAccountTriggersCourtesyOTP(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)
	sentAfterRegister := len(f.gateway.Sent())

	_, _, err = f.svc.Login(ctx, "a@x.com", "Secr3tPass")
	assert.ErrorIs(t, err, ErrAccountNotActive)
	assert.Len(t, f.gateway.Sent(), sentAfterRegister+1, "inactive login re-issues exactly one OTP")
}

func TestRefresh_andLogout(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerActive(t, "a@x.com", "Secr3tPass")
	pair, _, err := f.svc.Login(ctx, "a@x.com", "Secr3tPass")
	require.NoError(t, err)

	access, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken))

	// Revoked token must never mint again, even though it is unexpired.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Revoking twice is not an error.
	assert.NoError(t, f.svc.Logout(ctx, pair.RefreshToken))
}

func TestRefresh_garbageToken(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefresh_accessTokenRejected(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerActive(t, "a@x.com", "Secr3tPass")
	pair, _, err := f.svc.Login(ctx, "a@x.com", "Secr3tPass")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid, "access tokens must not refresh")
}

func TestPasswordReset_flow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.registerActive(t, "a@x.com", "Secr3tPass")

	delivered, err := f.svc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, delivered)
	code := f.lastCode(t)

	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, "a@x.com", code, "NewSecr3t"))

	_, _, err = f.svc.Login(ctx, "a@x.com", "NewSecr3t")
	assert.NoError(t, err, "new password must work")
	_, _, err = f.svc.Login(ctx, "a@x.com", "Secr3tPass")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "old password must stop working")
}

func TestPasswordReset_expiredCodeLeavesHashUnchanged(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cred := f.registerActive(t, "a@x.com", "Secr3tPass")

	_, err := f.svc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	code := f.lastCode(t)
	f.otps.Expire(cred.ID)

	before, _ := f.users.GetByEmail(ctx, "a@x.com")
	err = f.svc.ConfirmPasswordReset(ctx, "a@x.com", code, "NewSecr3t")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	after, _ := f.users.GetByEmail(ctx, "a@x.com")
	assert.Equal(t, before.PasswordHash, after.PasswordHash, "expired reset must not touch the hash")
}

func TestPasswordReset_doesNotAlterActiveFlag(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Reset on a still-unverified account must not activate it.
	result, err := f.svc.Register(ctx, "a@x.com", "Secr3tPass", model.ProfileUpdate{})
	require.NoError(t, err)

	delivered, err := f.svc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err, "reset is issued regardless of active state")
	assert.True(t, delivered)
	code := f.lastCode(t)

	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, "a@x.com", code, "NewSecr3t"))
	cred, _ := f.users.GetByID(ctx, result.Credential.ID)
	assert.False(t, cred.IsActive, "reset must not flip the active flag")
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cred := f.registerActive(t, "a@x.com", "Secr3tPass")

	err := f.svc.ChangePassword(ctx, cred.ID, "WrongOld1", "NewSecr3t")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = f.svc.ChangePassword(ctx, cred.ID, "Secr3tPass", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	require.NoError(t, f.svc.ChangePassword(ctx, cred.ID, "Secr3tPass", "NewSecr3t"))
	_, _, err = f.svc.Login(ctx, "a@x.com", "NewSecr3t")
	assert.NoError(t, err)
}

func TestUpdateProfile_partial(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cred := f.registerActive(t, "a@x.com", "Secr3tPass")

	name := "Ada"
	updated, err := f.svc.UpdateProfile(ctx, cred.ID, model.ProfileUpdate{FirstName: &name})
	require.NoError(t, err)
	require.NotNil(t, updated.FirstName)
	assert.Equal(t, "Ada", *updated.FirstName)
	assert.Equal(t, cred.Email, updated.Email, "email is not client-writable")
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "al***@x.com", MaskEmail("alice@x.com"))
	assert.Equal(t, "****@x.com", MaskEmail("ab@x.com"))
	assert.Equal(t, "****", MaskEmail("not-an-email"))
}

// registerActive registers and verifies a user, returning the credential.
func (f *serviceFixture) registerActive(t *testing.T, email, password string) model.Credential {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, email, password, model.ProfileUpdate{})
	require.NoError(t, err)
	cred, err := f.svc.VerifyEmail(ctx, email, f.lastCode(t))
	require.NoError(t, err)
	return cred
}
