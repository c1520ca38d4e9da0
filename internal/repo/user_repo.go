package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/accountd/server/internal/model"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UserRepo defines the credential store contract. Email uniqueness is
// enforced by the store; Activate is a conditional update so concurrent
// verifications cannot double-activate.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Credential, error)
	GetByEmail(ctx context.Context, email string) (model.Credential, error)
	Insert(ctx context.Context, cred model.Credential) (model.Credential, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// Activate flips is_active false->true. Returns false when the account
	// was already active (or does not exist).
	Activate(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.Credential, error)
	SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a Postgres-backed UserRepo.
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const credentialColumns = `
	id, email, password_hash, is_active, is_disabled, is_staff,
	first_name, last_name, phone_number, avatar_ref, gender, age,
	date_of_birth, joined_at, last_login_at
`

func scanCredential(row *sql.Row) (model.Credential, error) {
	var c model.Credential
	var idStr string
	err := row.Scan(
		&idStr,
		&c.Email,
		&c.PasswordHash,
		&c.IsActive,
		&c.IsDisabled,
		&c.IsStaff,
		&c.FirstName,
		&c.LastName,
		&c.PhoneNumber,
		&c.AvatarRef,
		&c.Gender,
		&c.Age,
		&c.DateOfBirth,
		&c.JoinedAt,
		&c.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse credential ID: %w", err)
	}
	return c, nil
}

// GetByID retrieves a credential by ID.
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanCredential(row)
}

// GetByEmail retrieves a credential by its case-normalized email.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanCredential(row)
}

// Insert stores a new credential. A unique-violation on email maps to
// ErrDuplicate.
func (r *userRepo) Insert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, is_active, is_staff,
			first_name, last_name, phone_number, avatar_ref, gender, age, date_of_birth
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+credentialColumns+`
	`,
		cred.ID, cred.Email, cred.PasswordHash, cred.IsActive, cred.IsStaff,
		cred.FirstName, cred.LastName, cred.PhoneNumber, cred.AvatarRef,
		cred.Gender, cred.Age, cred.DateOfBirth,
	)
	created, err := scanCredential(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.Credential{}, ErrDuplicate
		}
		return model.Credential{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// UpdatePassword replaces the stored password hash.
func (r *userRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Activate flips is_active in a single conditional update.
func (r *userRepo) Activate(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active = true WHERE id = $1 AND is_active = false
	`, id)
	if err != nil {
		return false, fmt.Errorf("activate user: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// UpdateProfile applies a partial profile update; nil fields keep their
// current value via COALESCE.
func (r *userRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			first_name    = COALESCE($2, first_name),
			last_name     = COALESCE($3, last_name),
			phone_number  = COALESCE($4, phone_number),
			avatar_ref    = COALESCE($5, avatar_ref),
			gender        = COALESCE($6, gender),
			age           = COALESCE($7, age),
			date_of_birth = COALESCE($8, date_of_birth)
		WHERE id = $1
		RETURNING `+credentialColumns+`
	`,
		id, upd.FirstName, upd.LastName, upd.PhoneNumber, upd.AvatarRef,
		upd.Gender, upd.Age, upd.DateOfBirth,
	)
	return scanCredential(row)
}

// SetLastLogin stamps the last successful login time.
func (r *userRepo) SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	return nil
}
