package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "opsfloww"

// TokenClass distinguishes access tokens from refresh tokens.
type TokenClass string

const (
	AccessToken  TokenClass = "access"
	RefreshToken TokenClass = "refresh"
)

const (
	DefaultAccessTTL  = 20 * time.Minute
	DefaultRefreshTTL = 20 * 24 * time.Hour
)

// Claims represents JWT claims used across the service.
type Claims struct {
	TokenUse TokenClass `json:"token_use"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the issued-at claim, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the expiry claim, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedToken is a signed token with its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Issuer mints and verifies HS256 tokens. It holds no state beyond its key.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer)

// WithTTLs overrides the access and refresh lifetimes. Non-positive values keep the defaults.
func WithTTLs(access, refresh time.Duration) IssuerOption {
	return func(i *Issuer) {
		if access > 0 {
			i.accessTTL = access
		}
		if refresh > 0 {
			i.refreshTTL = refresh
		}
	}
}

// WithIssuerClock overrides the time source (useful for tests).
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer builds an issuer signing with secret.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is not configured")
	}
	i := &Issuer{
		secret:     []byte(secret),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured lifetime for class.
func (i *Issuer) TTL(class TokenClass) time.Duration {
	if class == RefreshToken {
		return i.refreshTTL
	}
	return i.accessTTL
}

// Issue signs a token for userID with the lifetime of class.
func (i *Issuer) Issue(userID string, class TokenClass) (IssuedToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return IssuedToken{}, errors.New("userID is required")
	}
	if class != AccessToken && class != RefreshToken {
		return IssuedToken{}, fmt.Errorf("unknown token class %q", class)
	}
	now := i.now().UTC()
	exp := now.Add(i.TTL(class))
	claims := Claims{
		TokenUse: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks signature and expiry. It does not consult revocation.
func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSignature
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidSignature
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// VerifyClass verifies token and requires it to be of the given class.
func (i *Issuer) VerifyClass(token string, class TokenClass) (*Claims, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != class {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// RemainingTTL decodes a token without checking revocation and reports how long it
// stays valid. Tokens that fail verification report zero.
func (i *Issuer) RemainingTTL(token string) time.Duration {
	claims, err := i.Verify(token)
	if err != nil {
		return 0
	}
	return claims.ExpiresAtTime().Sub(i.now())
}
