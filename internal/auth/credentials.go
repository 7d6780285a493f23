package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	maxNameLength     = 50
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
)

// Policy holds the tunables of the credential store.
type Policy struct {
	BcryptCost       int
	MaxLoginAttempts int
	LockDuration     time.Duration
	ResetTokenTTL    time.Duration
	VerifyTokenTTL   time.Duration
}

// DefaultPolicy returns the stock lockout and token lifetimes.
func DefaultPolicy() Policy {
	return Policy{
		BcryptCost:       DefaultBcryptCost,
		MaxLoginAttempts: 5,
		LockDuration:     15 * time.Minute,
		ResetTokenTTL:    time.Hour,
		VerifyTokenTTL:   24 * time.Hour,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BcryptCost == 0 {
		p.BcryptCost = d.BcryptCost
	}
	if p.MaxLoginAttempts <= 0 {
		p.MaxLoginAttempts = d.MaxLoginAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = d.LockDuration
	}
	if p.ResetTokenTTL <= 0 {
		p.ResetTokenTTL = d.ResetTokenTTL
	}
	if p.VerifyTokenTTL <= 0 {
		p.VerifyTokenTTL = d.VerifyTokenTTL
	}
	return p
}

// SignupInput is the payload accepted when registering an account.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Role            Role
	Department      string
	Position        string
}

// CredentialStore owns password digests, reset/verification digests and lockout state.
type CredentialStore struct {
	users  UserStore
	policy Policy
	now    func() time.Time

	decoyOnce sync.Once
	decoy     string
}

// NewCredentialStore wires a credential store over users.
func NewCredentialStore(users UserStore, policy Policy, now func() time.Time) *CredentialStore {
	if now == nil {
		now = time.Now
	}
	return &CredentialStore{users: users, policy: policy.withDefaults(), now: now}
}

// Policy returns the effective policy.
func (c *CredentialStore) Policy() Policy { return c.policy }

// CreateUser validates input, hashes the password and persists the record.
func (c *CredentialStore) CreateUser(ctx context.Context, in SignupInput) (*User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newError(ErrValidation, "Name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, newError(ErrValidation, "Name cannot exceed %d characters", maxNameLength)
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validateNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, newError(ErrValidation, "Invalid role: %s", role)
	}

	hash, err := HashPassword(in.Password, c.policy.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := c.now().UTC()
	u := &User{
		Name:         name,
		Email:        email,
		Role:         role,
		Department:   strings.TrimSpace(in.Department),
		Position:     strings.TrimSpace(in.Position),
		Active:       true,
		Settings:     DefaultSettings(),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(ErrConflict, "Email address is already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// VerifyPassword compares a candidate with the stored digest.
func (c *CredentialStore) VerifyPassword(candidate, digest string) bool {
	return VerifyPassword(candidate, digest)
}

// RejectUnknown spends one bcrypt comparison at the policy cost and reports
// false, so a sign-in for a missing account takes as long as a wrong password.
func (c *CredentialStore) RejectUnknown(candidate string) bool {
	c.decoyOnce.Do(func() {
		raw, _, err := newRawToken()
		if err != nil {
			raw = "decoy-password"
		}
		c.decoy, _ = HashPassword(raw, c.policy.BcryptCost)
	})
	_ = VerifyPassword(candidate, c.decoy)
	return false
}

// RecordFailedLogin bumps the attempt counter and locks the account at the threshold.
// The returned record reflects the post-increment state.
func (c *CredentialStore) RecordFailedLogin(ctx context.Context, u *User) (*User, error) {
	updated, err := c.users.RecordFailedLogin(ctx, u.ID, c.policy.MaxLoginAttempts, c.policy.LockDuration, c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record failed login: %w", err)
	}
	return updated, nil
}

// RecordSuccessfulLogin clears the attempt counter and any lock.
func (c *CredentialStore) RecordSuccessfulLogin(ctx context.Context, u *User) error {
	if err := c.users.ResetLoginAttempts(ctx, u.ID); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	u.LoginAttempts = 0
	u.LockUntil = nil
	return nil
}

// IsLocked reports whether u is locked at the current time.
func (c *CredentialStore) IsLocked(u *User) bool {
	return u.IsLocked(c.now())
}

// CreatePasswordResetToken stores a reset digest and returns the raw token.
func (c *CredentialStore) CreatePasswordResetToken(ctx context.Context, u *User) (string, error) {
	return c.createToken(ctx, u, TokenPasswordReset, c.policy.ResetTokenTTL)
}

// CreateEmailVerificationToken stores a verification digest and returns the raw token.
func (c *CredentialStore) CreateEmailVerificationToken(ctx context.Context, u *User) (string, error) {
	return c.createToken(ctx, u, TokenEmailVerification, c.policy.VerifyTokenTTL)
}

func (c *CredentialStore) createToken(ctx context.Context, u *User, kind TokenKind, ttl time.Duration) (string, error) {
	raw, digest, err := newRawToken()
	if err != nil {
		return "", fmt.Errorf("generate %s token: %w", kind, err)
	}
	expires := c.now().UTC().Add(ttl)
	if err := c.users.SetTokenDigest(ctx, u.ID, kind, digest, expires); err != nil {
		return "", fmt.Errorf("store %s token: %w", kind, err)
	}
	switch kind {
	case TokenPasswordReset:
		u.PasswordResetToken, u.PasswordResetExpires = digest, &expires
	case TokenEmailVerification:
		u.EmailVerificationToken, u.EmailVerificationExpires = digest, &expires
	}
	return raw, nil
}

// ClearToken removes a pending digest, used when delivery of the raw token failed.
func (c *CredentialStore) ClearToken(ctx context.Context, u *User, kind TokenKind) error {
	if err := c.users.SetTokenDigest(ctx, u.ID, kind, "", time.Time{}); err != nil {
		return fmt.Errorf("clear %s token: %w", kind, err)
	}
	switch kind {
	case TokenPasswordReset:
		u.PasswordResetToken, u.PasswordResetExpires = "", nil
	case TokenEmailVerification:
		u.EmailVerificationToken, u.EmailVerificationExpires = "", nil
	}
	return nil
}

// ConsumeToken redeems a raw token once. Unknown, expired or reused tokens yield ErrInvalidToken.
func (c *CredentialStore) ConsumeToken(ctx context.Context, raw string, kind TokenKind) (*User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, newError(ErrInvalidToken, "Token is invalid or has expired")
	}
	u, err := c.users.ConsumeTokenDigest(ctx, kind, DigestToken(raw), c.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(ErrInvalidToken, "Token is invalid or has expired")
		}
		return nil, fmt.Errorf("consume %s token: %w", kind, err)
	}
	return u, nil
}

// UpdatePassword re-hashes the password and records the change one second in the past
// so a token minted right after the change is not treated as stale.
func (c *CredentialStore) UpdatePassword(ctx context.Context, u *User, password, confirm string) error {
	if err := validateNewPassword(password, confirm); err != nil {
		return err
	}
	hash, err := HashPassword(password, c.policy.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	changedAt := c.now().UTC().Add(-time.Second)
	if err := c.users.SetPassword(ctx, u.ID, hash, changedAt); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	return nil
}

func validateEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", newError(ErrValidation, "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		return "", newError(ErrValidation, "Please provide a valid email address")
	}
	return email, nil
}

func validateNewPassword(password, confirm string) error {
	if password == "" {
		return newError(ErrValidation, "Password is required")
	}
	if len(password) < minPasswordLength {
		return newError(ErrValidation, "Password must be at least %d characters long", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return newError(ErrValidation, "Password cannot exceed %d bytes", maxPasswordBytes)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return newError(ErrValidation, "Password must contain at least one uppercase letter, one lowercase letter, and one number")
	}
	if password != confirm {
		return newError(ErrValidation, "Passwords do not match")
	}
	return nil
}
