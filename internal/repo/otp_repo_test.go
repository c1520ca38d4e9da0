package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestOtpRepo_MarkUsed_winnerAndLoser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r := NewOtpRepo(db)
	id := uuid.New()

	// First attempt flips the flag.
	mock.ExpectExec("UPDATE otps SET used = true").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := r.MarkUsed(context.Background(), id)
	if err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if !won {
		t.Error("first redemption should win")
	}

	// Second attempt matches no rows: the conditional update lost.
	mock.ExpectExec("UPDATE otps SET used = true").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = r.MarkUsed(context.Background(), id)
	if err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if won {
		t.Error("second redemption must lose")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOtpRepo_FindCandidate_notFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r := NewOtpRepo(db)
	userID := uuid.New()

	mock.ExpectQuery("SELECT id, user_id, code_hash").
		WithArgs(userID, "deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "code_hash", "used", "created_at", "expires_at"}))

	_, err = r.FindCandidate(context.Background(), userID, "deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOtpRepo_FindCandidate_returnsRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r := NewOtpRepo(db)
	id := uuid.New()
	userID := uuid.New()
	created := time.Now().Add(-time.Minute)
	expires := time.Now().Add(9 * time.Minute)

	mock.ExpectQuery("SELECT id, user_id, code_hash").
		WithArgs(userID, "cafe").
		WillReturnRows(sqlmock.
			NewRows([]string{"id", "user_id", "code_hash", "used", "created_at", "expires_at"}).
			AddRow(id.String(), userID.String(), "cafe", false, created, expires))

	rec, err := r.FindCandidate(context.Background(), userID, "cafe")
	if err != nil {
		t.Fatalf("FindCandidate: %v", err)
	}
	if rec.ID != id || rec.UserID != userID || rec.Used {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.Valid(time.Now()) {
		t.Error("record should be valid")
	}
}

func TestUserRepo_Activate_conditionalUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r := NewUserRepo(db)
	id := uuid.New()

	mock.ExpectExec("UPDATE users SET is_active = true").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	flipped, err := r.Activate(context.Background(), id)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !flipped {
		t.Error("inactive account should flip")
	}

	mock.ExpectExec("UPDATE users SET is_active = true").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	flipped, err = r.Activate(context.Background(), id)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if flipped {
		t.Error("already-active account must not flip again")
	}
}
