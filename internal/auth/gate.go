package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Revoker is the revocation registry as seen by the gate and sign-out.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) bool
}

// Gate turns a presented bearer token into an authenticated user.
type Gate struct {
	issuer  *Issuer
	revoked Revoker
	users   UserStore
}

// NewGate wires the gate.
func NewGate(issuer *Issuer, revoked Revoker, users UserStore) *Gate {
	return &Gate{issuer: issuer, revoked: revoked, users: users}
}

// Authenticate checks revocation, signature and expiry, that the subject still exists
// and that the token was not minted before the last password change.
func (g *Gate) Authenticate(ctx context.Context, token string, class TokenClass) (*User, *Claims, error) {
	if token == "" {
		return nil, nil, newError(ErrUnauthenticated, "You are not logged in! Please log in to get access.")
	}
	if g.revoked != nil && g.revoked.IsRevoked(ctx, token) {
		return nil, nil, newError(ErrUnauthenticated, "This token has been revoked. Please log in again.")
	}
	claims, err := g.issuer.VerifyClass(token, class)
	if err != nil {
		return nil, nil, err
	}
	u, err := g.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, newError(ErrUnauthenticated, "The user belonging to this token no longer exists.")
		}
		return nil, nil, fmt.Errorf("load token subject: %w", err)
	}
	if u.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return nil, nil, newError(ErrUnauthenticated, "User recently changed password! Please log in again.")
	}
	return u, claims, nil
}
