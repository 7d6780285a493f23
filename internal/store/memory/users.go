// Package memory is an in-process store for tests and single-node development.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

// Store keeps users, projects, teams and tasks in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*auth.User
	projects map[string]*work.Project
	teams    map[string]*work.Team
	tasks    map[string]*work.Task
	now      func() time.Time
}

var (
	_ auth.UserStore     = (*Store)(nil)
	_ auth.TeamDirectory = (*Store)(nil)
	_ work.Store         = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]*auth.User),
		projects: make(map[string]*work.Project),
		teams:    make(map[string]*work.Team),
		tasks:    make(map[string]*work.Task),
		now:      time.Now,
	}
}

func newID() string { return primitive.NewObjectID().Hex() }

func cloneUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

func timePtr(t time.Time) *time.Time { return &t }

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = newID()
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) activeUser(id string) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.activeUser(id)
	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email && u.Active {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Store) SetTokenDigest(ctx context.Context, userID string, kind auth.TokenKind, digest string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	var exp *time.Time
	if digest != "" {
		exp = timePtr(expires)
	}
	switch kind {
	case auth.TokenPasswordReset:
		u.PasswordResetToken, u.PasswordResetExpires = digest, exp
	case auth.TokenEmailVerification:
		u.EmailVerificationToken, u.EmailVerificationExpires = digest, exp
	}
	return nil
}

func (s *Store) ConsumeTokenDigest(ctx context.Context, kind auth.TokenKind, digest string, now time.Time) (*auth.User, error) {
	if digest == "" {
		return nil, auth.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		switch kind {
		case auth.TokenPasswordReset:
			if u.PasswordResetToken == digest && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
				u.PasswordResetToken, u.PasswordResetExpires = "", nil
				return cloneUser(u), nil
			}
		case auth.TokenEmailVerification:
			if u.EmailVerificationToken == digest && u.EmailVerificationExpires != nil && u.EmailVerificationExpires.After(now) {
				u.EmailVerificationToken, u.EmailVerificationExpires = "", nil
				return cloneUser(u), nil
			}
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Store) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		u.LockUntil = timePtr(now.Add(lockFor))
	}
	return cloneUser(u), nil
}

func (s *Store) ResetLoginAttempts(ctx context.Context, userID string) error {
	return s.mutate(userID, func(u *auth.User) {
		u.LoginAttempts = 0
		u.LockUntil = nil
	})
}

func (s *Store) SetPassword(ctx context.Context, userID, hash string, changedAt time.Time) error {
	return s.mutate(userID, func(u *auth.User) {
		u.PasswordHash = hash
		u.PasswordChangedAt = timePtr(changedAt)
	})
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.mutate(userID, func(u *auth.User) { u.EmailVerified = true })
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, p auth.ProfileUpdate) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.activeUser(userID)
	if err != nil {
		return nil, err
	}
	if p.Email != nil && *p.Email != u.Email {
		for id, other := range s.users {
			if id != userID && other.Email == *p.Email {
				return nil, auth.ErrConflict
			}
		}
		u.Email = *p.Email
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.Position != nil {
		u.Position = *p.Position
	}
	u.UpdatedAt = s.now().UTC()
	return cloneUser(u), nil
}

func (s *Store) UpdateSettings(ctx context.Context, userID string, settings auth.Settings) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.activeUser(userID)
	if err != nil {
		return nil, err
	}
	u.Settings = settings
	u.UpdatedAt = s.now().UTC()
	return cloneUser(u), nil
}

func (s *Store) SetTwoFactor(ctx context.Context, userID, secret string, enabled bool) error {
	return s.mutate(userID, func(u *auth.User) {
		u.TwoFactorSecret = secret
		u.Settings.Security.TwoFactorAuth = enabled
	})
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		touched := false
		if u.PasswordResetExpires != nil && !u.PasswordResetExpires.After(now) {
			u.PasswordResetToken, u.PasswordResetExpires = "", nil
			touched = true
		}
		if u.EmailVerificationExpires != nil && !u.EmailVerificationExpires.After(now) {
			u.EmailVerificationToken, u.EmailVerificationExpires = "", nil
			touched = true
		}
		if u.LockUntil != nil && !u.LockUntil.After(now) {
			u.LockUntil = nil
			u.LoginAttempts = 0
			touched = true
		}
		if touched {
			n++
		}
	}
	return n, nil
}

// Deactivate hides a user from lookups.
func (s *Store) Deactivate(ctx context.Context, userID string) error {
	return s.mutate(userID, func(u *auth.User) { u.Active = false })
}

func (s *Store) mutate(userID string, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) TeamIDsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, t := range s.teams {
		if t.LeaderID == userID || slices.Contains(t.MemberIDs, userID) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}
