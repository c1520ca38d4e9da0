package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy decides whether a candidate password is acceptable.
// Implementations return a human-readable reason when rejecting.
type PasswordPolicy interface {
	Check(password string) error
}

// PasswordPolicyFunc adapts a function to the PasswordPolicy interface.
type PasswordPolicyFunc func(password string) error

func (f PasswordPolicyFunc) Check(password string) error { return f(password) }

// DefaultPasswordPolicy requires at least 8 characters with a letter and a
// digit.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicyFunc(func(password string) error {
		if len(password) < 8 {
			return fmt.Errorf("must be at least 8 characters")
		}
		var hasLetter, hasDigit bool
		for _, r := range password {
			switch {
			case unicode.IsLetter(r):
				hasLetter = true
			case unicode.IsDigit(r):
				hasDigit = true
			}
		}
		if !hasLetter || !hasDigit {
			return fmt.Errorf("must contain a letter and a digit")
		}
		return nil
	})
}

// HashPassword returns the bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
