package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus describes the lifecycle state of a credential.
type AccountStatus string

const (
	StatusUnverified AccountStatus = "unverified"
	StatusActive     AccountStatus = "active"
	StatusDisabled   AccountStatus = "disabled"
)

// Credential represents a user account in the system.
type Credential struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	IsDisabled   bool
	IsStaff      bool
	FirstName    *string
	LastName     *string
	PhoneNumber  *string
	AvatarRef    *string
	Gender       *string
	Age          *int
	DateOfBirth  *time.Time
	JoinedAt     time.Time
	LastLoginAt  *time.Time
}

// Status derives the lifecycle state from the stored flags.
func (c Credential) Status() AccountStatus {
	switch {
	case c.IsDisabled:
		return StatusDisabled
	case c.IsActive:
		return StatusActive
	default:
		return StatusUnverified
	}
}

// OTPRecord is one issued one-time passcode. The plaintext code is never
// stored; CodeHash is a salted SHA-256 of it. Used flips false->true exactly
// once and records are never deleted.
type OTPRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Valid reports whether the record can still be redeemed at the given time.
func (o OTPRecord) Valid(now time.Time) bool {
	return !o.Used && now.Before(o.ExpiresAt)
}

// ProfileUpdate carries the client-writable profile fields for a partial
// update. Nil means "leave unchanged".
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	AvatarRef   *string
	Gender      *string
	Age         *int
	DateOfBirth *time.Time
}
