// Package tests holds shared test doubles and DB helpers. The in-memory
// stores mirror the SQL repos' contracts, including the compare-and-set
// semantics of MarkUsed and Activate.
package tests

import (
	"context"
	"sync"
	"time"

	"github.com/accountd/server/internal/model"
	"github.com/accountd/server/internal/repo"
	"github.com/google/uuid"
)

// UserStore is an in-memory repo.UserRepo.
type UserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]model.Credential
	byEmail map[string]uuid.UUID
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[uuid.UUID]model.Credential),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Credential{}, repo.ErrNotFound
	}
	return c, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return model.Credential{}, repo.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *UserStore) Insert(_ context.Context, cred model.Credential) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[cred.Email]; exists {
		return model.Credential{}, repo.ErrDuplicate
	}
	cred.JoinedAt = time.Now()
	s.byID[cred.ID] = cred
	s.byEmail[cred.Email] = cred.ID
	return cred, nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.PasswordHash = passwordHash
	s.byID[id] = c
	return nil
}

func (s *UserStore) Activate(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.IsActive {
		return false, nil
	}
	c.IsActive = true
	s.byID[id] = c
	return true, nil
}

func (s *UserStore) UpdateProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Credential{}, repo.ErrNotFound
	}
	if upd.FirstName != nil {
		c.FirstName = upd.FirstName
	}
	if upd.LastName != nil {
		c.LastName = upd.LastName
	}
	if upd.PhoneNumber != nil {
		c.PhoneNumber = upd.PhoneNumber
	}
	if upd.AvatarRef != nil {
		c.AvatarRef = upd.AvatarRef
	}
	if upd.Gender != nil {
		c.Gender = upd.Gender
	}
	if upd.Age != nil {
		c.Age = upd.Age
	}
	if upd.DateOfBirth != nil {
		c.DateOfBirth = upd.DateOfBirth
	}
	s.byID[id] = c
	return c, nil
}

func (s *UserStore) SetLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.LastLoginAt = &at
	s.byID[id] = c
	return nil
}

// OtpStore is an in-memory repo.OtpRepo. MarkUsed is atomic under the lock
// so concurrency tests exercise real CAS behavior.
type OtpStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.OTPRecord

	// MarkUsedCalls counts redemption writes, used to assert idempotent
	// verification consumes nothing.
	MarkUsedCalls int
}

// NewOtpStore creates an empty OTP store.
func NewOtpStore() *OtpStore {
	return &OtpStore{records: make(map[uuid.UUID]model.OTPRecord)}
}

func (s *OtpStore) Insert(_ context.Context, rec model.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *OtpStore) FindCandidate(_ context.Context, userID uuid.UUID, codeHash string) (model.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var best model.OTPRecord
	found := false
	for _, rec := range s.records {
		if rec.UserID != userID || rec.CodeHash != codeHash {
			continue
		}
		if !found || better(rec, best, now) {
			best = rec
			found = true
		}
	}
	if !found {
		return model.OTPRecord{}, repo.ErrNotFound
	}
	return best, nil
}

// better mirrors the SQL ordering: unused first, then unexpired, then
// most recently issued.
func better(a, b model.OTPRecord, now time.Time) bool {
	if a.Used != b.Used {
		return !a.Used
	}
	av, bv := now.Before(a.ExpiresAt), now.Before(b.ExpiresAt)
	if av != bv {
		return av
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *OtpStore) MarkUsed(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MarkUsedCalls++
	rec, ok := s.records[id]
	if !ok || rec.Used {
		return false, nil
	}
	rec.Used = true
	s.records[id] = rec
	return true, nil
}

func (s *OtpStore) CountOutstanding(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	count := 0
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Valid(now) {
			count++
		}
	}
	return count, nil
}

// All returns a snapshot of every stored record for a user.
func (s *OtpStore) All(userID uuid.UUID) []model.OTPRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OTPRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// Expire backdates every record for the user so validation must fail.
func (s *OtpStore) Expire(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.UserID == userID {
			rec.ExpiresAt = time.Now().Add(-time.Minute)
			s.records[id] = rec
		}
	}
}

// RevocationList is an in-memory repo.RevocationRepo.
type RevocationList struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

// NewRevocationList creates an empty revocation list.
func NewRevocationList() *RevocationList {
	return &RevocationList{entries: make(map[string]struct{})}
}

func (l *RevocationList) Add(_ context.Context, key string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = struct{}{}
	return nil
}

func (l *RevocationList) Contains(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok, nil
}

// SentMail is one message delivered to the GatewayRecorder.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// GatewayRecorder is a notify.Gateway that records sends and can be made
// to fail.
type GatewayRecorder struct {
	mu   sync.Mutex
	Err  error
	sent []SentMail
}

// NewGatewayRecorder creates a recorder that succeeds until Err is set.
func NewGatewayRecorder() *GatewayRecorder {
	return &GatewayRecorder{}
}

func (g *GatewayRecorder) Send(_ context.Context, to, subject, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.sent = append(g.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a snapshot of delivered messages.
func (g *GatewayRecorder) Sent() []SentMail {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SentMail, len(g.sent))
	copy(out, g.sent)
	return out
}
