package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrTwoFactorRequired is returned by SignIn when the account needs a one-time code.
var ErrTwoFactorRequired = &Error{Kind: ErrUnauthenticated, Message: "Two-factor code required"}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TwoFactorSetup is handed to the user once to enroll an authenticator app.
type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// SetupTwoFactor generates a pending TOTP secret. It takes effect after EnableTwoFactor.
func (s *Service) SetupTwoFactor(ctx context.Context, u *User) (TwoFactorSetup, error) {
	if u.TwoFactorEnabled() {
		return TwoFactorSetup{}, newError(ErrValidation, "Two-factor authentication is already enabled")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.totpIssuer,
		AccountName: u.Email,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return TwoFactorSetup{}, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.users.SetTwoFactor(ctx, u.ID, key.Secret(), false); err != nil {
		return TwoFactorSetup{}, fmt.Errorf("store totp secret: %w", err)
	}
	u.TwoFactorSecret = key.Secret()
	return TwoFactorSetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// EnableTwoFactor confirms enrollment with a code from the authenticator.
func (s *Service) EnableTwoFactor(ctx context.Context, u *User, code string) error {
	if u.TwoFactorSecret == "" {
		return newError(ErrValidation, "Two-factor setup has not been started")
	}
	if !s.validTOTP(code, u.TwoFactorSecret) {
		return newError(ErrValidation, "Invalid two-factor code")
	}
	if err := s.users.SetTwoFactor(ctx, u.ID, u.TwoFactorSecret, true); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	u.Settings.Security.TwoFactorAuth = true
	return nil
}

// DisableTwoFactor turns two-factor off after re-checking the password.
func (s *Service) DisableTwoFactor(ctx context.Context, u *User, password string) error {
	if !s.creds.VerifyPassword(password, u.PasswordHash) {
		return newError(ErrUnauthenticated, "Your current password is wrong")
	}
	if err := s.users.SetTwoFactor(ctx, u.ID, "", false); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	u.TwoFactorSecret = ""
	u.Settings.Security.TwoFactorAuth = false
	return nil
}

func (s *Service) validTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now().UTC(), totpOpts)
	return err == nil && ok
}
