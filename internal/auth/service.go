package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"opsfloww.io/internal/obs"
)

// Notifier delivers account emails. Implementations must not log raw tokens.
type Notifier interface {
	SendWelcome(ctx context.Context, u *User, verifyURL string) error
	SendEmailVerification(ctx context.Context, u *User, verifyURL string) error
	SendPasswordReset(ctx context.Context, u *User, resetURL string) error
	SendPasswordChanged(ctx context.Context, u *User) error
}

// Session is the result of a successful sign-in.
type Session struct {
	User    *User
	Access  IssuedToken
	Refresh IssuedToken
}

// Service runs the account flows on top of the credential store, issuer and gate.
type Service struct {
	creds       *CredentialStore
	users       UserStore
	issuer      *Issuer
	gate        *Gate
	revoked     Revoker
	teams       TeamDirectory
	notifier    Notifier
	frontendURL string
	totpIssuer  string
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithNotifier sets the email notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

// WithTeamDirectory sets the membership source used by PermissionsFor.
func WithTeamDirectory(d TeamDirectory) ServiceOption {
	return func(s *Service) error {
		s.teams = d
		return nil
	}
}

// WithFrontendURL sets the base URL for links placed in emails.
func WithFrontendURL(raw string) ServiceOption {
	return func(s *Service) error {
		raw = strings.TrimRight(strings.TrimSpace(raw), "/")
		if raw == "" {
			return nil
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("auth: frontend url: %w", err)
		}
		s.frontendURL = raw
		return nil
	}
}

// WithTOTPIssuer overrides the issuer shown in authenticator apps.
func WithTOTPIssuer(name string) ServiceOption {
	return func(s *Service) error {
		if name = strings.TrimSpace(name); name != "" {
			s.totpIssuer = name
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(creds *CredentialStore, issuer *Issuer, revoked Revoker, opts ...ServiceOption) (*Service, error) {
	if creds == nil || issuer == nil {
		return nil, errors.New("auth: credential store and issuer are required")
	}
	svc := &Service{
		creds:       creds,
		users:       creds.users,
		issuer:      issuer,
		revoked:     revoked,
		frontendURL: "http://localhost:3000",
		totpIssuer:  "OpsFloww",
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	svc.gate = NewGate(issuer, revoked, svc.users)
	return svc, nil
}

// Issuer exposes the token issuer.
func (s *Service) Issuer() *Issuer { return s.issuer }

// Authenticate validates an access token through the gate.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, *Claims, error) {
	return s.gate.Authenticate(ctx, token, AccessToken)
}

// SignUp registers an account, emails a verification link and signs the user in.
func (s *Service) SignUp(ctx context.Context, in SignupInput) (*Session, error) {
	u, err := s.creds.CreateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	raw, err := s.creds.CreateEmailVerificationToken(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, u, TokenEmailVerification, func(n Notifier) error {
		return n.SendWelcome(ctx, u, s.link("verify-email", raw))
	}); err != nil {
		return nil, err
	}
	return s.newSession(u)
}

// SignIn checks credentials, lockout state and, when enabled, the one-time code.
func (s *Service) SignIn(ctx context.Context, email, password, code string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, newError(ErrValidation, "Please provide email and password")
	}
	now := s.now()
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u != nil && u.IsLocked(now) {
		obs.ObserveSignin("locked")
		return nil, lockedError(u, now)
	}
	if u == nil {
		s.creds.RejectUnknown(password)
		obs.ObserveSignin("bad_credentials")
		return nil, newError(ErrUnauthenticated, "Incorrect email or password")
	}
	if !s.creds.VerifyPassword(password, u.PasswordHash) {
		if err := s.failLogin(ctx, u); err != nil {
			return nil, err
		}
		obs.ObserveSignin("bad_credentials")
		return nil, newError(ErrUnauthenticated, "Incorrect email or password")
	}
	if u.TwoFactorEnabled() {
		if strings.TrimSpace(code) == "" {
			obs.ObserveSignin("otp_required")
			return nil, ErrTwoFactorRequired
		}
		if !s.validTOTP(code, u.TwoFactorSecret) {
			if err := s.failLogin(ctx, u); err != nil {
				return nil, err
			}
			obs.ObserveSignin("bad_otp")
			return nil, newError(ErrUnauthenticated, "Invalid two-factor code")
		}
	}
	if err := s.creds.RecordSuccessfulLogin(ctx, u); err != nil {
		return nil, err
	}
	obs.ObserveSignin("success")
	return s.newSession(u)
}

func (s *Service) failLogin(ctx context.Context, u *User) error {
	updated, err := s.creds.RecordFailedLogin(ctx, u)
	if err != nil {
		return err
	}
	if updated.IsLocked(s.now()) && !u.IsLocked(s.now()) {
		obs.ObserveLockout()
		obs.FromContext(ctx).WithField("user_id", u.ID).Warn("account locked after failed sign-in attempts")
	}
	return nil
}

func lockedError(u *User, now time.Time) error {
	minutes := int(u.LockRemaining(now) / time.Minute)
	return newError(ErrUnauthenticated, "Account is locked. Please try again after %d minutes", minutes)
}

// Blacklist revokes token for the rest of its lifetime. Tokens that are already
// expired or unverifiable are ignored.
func (s *Service) Blacklist(ctx context.Context, token string) error {
	if s.revoked == nil || token == "" {
		return nil
	}
	ttl := s.issuer.RemainingTTL(token)
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, token, ttl)
}

// ForgotPassword emails a reset link. Unknown addresses succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.FromContext(ctx).Info("password reset requested for unknown address")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	raw, err := s.creds.CreatePasswordResetToken(ctx, u)
	if err != nil {
		return err
	}
	return s.deliver(ctx, u, TokenPasswordReset, func(n Notifier) error {
		return n.SendPasswordReset(ctx, u, s.link("reset-password", raw))
	})
}

// ResetPassword redeems a reset token, sets the new password and signs the user in.
func (s *Service) ResetPassword(ctx context.Context, raw, password, confirm string) (*Session, error) {
	if err := validateNewPassword(password, confirm); err != nil {
		return nil, err
	}
	u, err := s.creds.ConsumeToken(ctx, raw, TokenPasswordReset)
	if err != nil {
		return nil, err
	}
	if err := s.creds.UpdatePassword(ctx, u, password, confirm); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.SendPasswordChanged(ctx, u); err != nil {
			obs.FromContext(ctx).WithError(err).WithField("user_id", u.ID).Warn("password changed notification failed")
		}
	}
	return s.newSession(u)
}

// VerifyEmail redeems a verification token.
func (s *Service) VerifyEmail(ctx context.Context, raw string) (*User, error) {
	u, err := s.creds.ConsumeToken(ctx, raw, TokenEmailVerification)
	if err != nil {
		return nil, err
	}
	if err := s.users.MarkEmailVerified(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}
	u.EmailVerified = true
	return u, nil
}

// ResendVerification issues a fresh verification link.
func (s *Service) ResendVerification(ctx context.Context, u *User) error {
	if u.EmailVerified {
		return newError(ErrValidation, "Email is already verified")
	}
	raw, err := s.creds.CreateEmailVerificationToken(ctx, u)
	if err != nil {
		return err
	}
	return s.deliver(ctx, u, TokenEmailVerification, func(n Notifier) error {
		return n.SendEmailVerification(ctx, u, s.link("verify-email", raw))
	})
}

// Refresh validates a refresh token like an access token and mints a new access token.
// The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (IssuedToken, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return IssuedToken{}, newError(ErrValidation, "Refresh token is required")
	}
	u, _, err := s.gate.Authenticate(ctx, refreshToken, RefreshToken)
	if err != nil {
		return IssuedToken{}, err
	}
	return s.issuer.Issue(u.ID, AccessToken)
}

// ChangePassword requires the current password, sets the new one and issues fresh tokens.
func (s *Service) ChangePassword(ctx context.Context, u *User, current, password, confirm string) (*Session, error) {
	if current == "" {
		return nil, newError(ErrValidation, "Current password is required")
	}
	if !s.creds.VerifyPassword(current, u.PasswordHash) {
		return nil, newError(ErrUnauthenticated, "Your current password is wrong")
	}
	if err := s.creds.UpdatePassword(ctx, u, password, confirm); err != nil {
		return nil, err
	}
	return s.newSession(u)
}

// DeactivateUser disables the account of u. Tokens already issued to it stop
// working at the next gate check because the lookup no longer finds the user.
func (s *Service) DeactivateUser(ctx context.Context, u *User) error {
	if err := s.users.Deactivate(ctx, u.ID); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// UpdateProfile changes the caller's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, u *User, p ProfileUpdate) (*User, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || len([]rune(name)) > maxNameLength {
			return nil, newError(ErrValidation, "Name must be between 1 and %d characters", maxNameLength)
		}
		p.Name = &name
	}
	if p.Email != nil {
		email, err := validateEmail(*p.Email)
		if err != nil {
			return nil, err
		}
		p.Email = &email
	}
	updated, err := s.users.UpdateProfile(ctx, u.ID, p)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(ErrConflict, "Email address is already registered")
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// SettingsPatch carries optional settings changes. Two-factor state is changed
// through the two-factor flows only.
type SettingsPatch struct {
	Notifications *NotificationSettings
	Theme         *string
	CompactMode   *bool
}

// UpdateSettings applies patch to the caller's settings.
func (s *Service) UpdateSettings(ctx context.Context, u *User, patch SettingsPatch) (*User, error) {
	next := u.Settings
	if patch.Notifications != nil {
		next.Notifications = *patch.Notifications
	}
	if patch.Theme != nil {
		if !ValidTheme(*patch.Theme) {
			return nil, newError(ErrValidation, "Theme must be one of light, dark, system")
		}
		next.Appearance.Theme = *patch.Theme
	}
	if patch.CompactMode != nil {
		next.Appearance.CompactMode = *patch.CompactMode
	}
	next.Security = u.Settings.Security
	updated, err := s.users.UpdateSettings(ctx, u.ID, next)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return updated, nil
}

// PermissionsFor binds an evaluator to u, fetching team memberships once.
func (s *Service) PermissionsFor(ctx context.Context, u *User) (Authorizer, error) {
	if u == nil {
		return NewEvaluator(nil, nil), nil
	}
	var teamIDs []string
	if s.teams != nil && u.Role != RoleAdmin {
		ids, err := s.teams.TeamIDsForUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("load team memberships: %w", err)
		}
		teamIDs = ids
	}
	return NewEvaluator(u, teamIDs), nil
}

func (s *Service) newSession(u *User) (*Session, error) {
	access, err := s.issuer.Issue(u.ID, AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.Issue(u.ID, RefreshToken)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Access: access, Refresh: refresh}, nil
}

// deliver sends an email carrying a freshly created token and rolls the token
// back when delivery fails.
func (s *Service) deliver(ctx context.Context, u *User, kind TokenKind, send func(Notifier) error) error {
	if s.notifier == nil {
		return nil
	}
	sendErr := send(s.notifier)
	if sendErr == nil {
		return nil
	}
	log := obs.FromContext(ctx).WithError(sendErr).WithField("user_id", u.ID).WithField("token_kind", string(kind))
	if err := s.creds.ClearToken(ctx, u, kind); err != nil {
		log.WithField("rollback_error", err.Error()).Error("email delivery failed and token rollback failed")
		return errDeliveryFailed
	}
	log.Error("email delivery failed, token rolled back")
	return errDeliveryFailed
}

func (s *Service) link(path, raw string) string {
	return s.frontendURL + "/" + path + "?token=" + url.QueryEscape(raw)
}
