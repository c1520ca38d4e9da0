package auth

import "errors"

var (
	// ErrValidation marks malformed caller input; no state was changed.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound means no credential exists for the given email or ID.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail means a credential with this email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrWeakPassword means the password failed the configured policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidOrExpiredCode means no matching unused unexpired OTP exists.
	ErrInvalidOrExpiredCode = errors.New("otp is invalid, expired or already used")
	// ErrWrongPassword means the supplied current password did not match.
	ErrWrongPassword = errors.New("old password is incorrect")
	// ErrInvalidCredentials covers both unknown email and wrong password on
	// login, deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotActive means the credential has not completed email
	// verification (or was disabled).
	ErrAccountNotActive = errors.New("account is not active")
	// ErrTokenRevoked means the refresh token is on the revocation list.
	ErrTokenRevoked = errors.New("token has been revoked")
	// ErrTokenExpired means the token is past its TTL.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenInvalid means the token failed signature or shape checks.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrDependency marks a store or gateway fault. Callers may retry these;
	// business errors above are never wrapped in it.
	ErrDependency = errors.New("dependency failure")
)
