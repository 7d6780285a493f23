package auth

import (
	"context"
	"time"
)

// UserStore describes persistence operations required by the credential store.
// Lookups ignore deactivated accounts and report ErrNotFound for them.
type UserStore interface {
	// Create assigns an ID and persists u. A duplicate email yields ErrConflict.
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// SetTokenDigest stores a reset or verification digest; an empty digest clears it.
	SetTokenDigest(ctx context.Context, userID string, kind TokenKind, digest string, expires time.Time) error
	// ConsumeTokenDigest atomically finds the user holding an unexpired digest and clears it.
	ConsumeTokenDigest(ctx context.Context, kind TokenKind, digest string, now time.Time) (*User, error)

	// RecordFailedLogin atomically increments the attempt counter and sets the lock
	// once the counter reaches maxAttempts. It returns the updated record.
	RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*User, error)
	ResetLoginAttempts(ctx context.Context, userID string) error

	SetPassword(ctx context.Context, userID, hash string, changedAt time.Time) error
	MarkEmailVerified(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID string, p ProfileUpdate) (*User, error)
	UpdateSettings(ctx context.Context, userID string, s Settings) (*User, error)
	SetTwoFactor(ctx context.Context, userID, secret string, enabled bool) error
	// Deactivate hides the account from every lookup above.
	Deactivate(ctx context.Context, userID string) error

	// PurgeExpired clears elapsed token digests and locks. It returns the records touched.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TeamDirectory resolves team membership for permission evaluation.
type TeamDirectory interface {
	TeamIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// ResourceLoader fetches a resource instance for the permission evaluator.
// A missing resource yields ErrNotFound.
type ResourceLoader interface {
	LoadResource(ctx context.Context, kind ResourceKind, id string) (*Resource, error)
}
