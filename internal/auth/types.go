package auth

import (
	"strings"
	"time"
)

// Role is one of the fixed account roles.
type Role string

const (
	RoleUser     Role = "user"
	RoleTeamLead Role = "team-lead"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTeamLead, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// TokenKind separates the reset and verification token namespaces.
type TokenKind string

const (
	TokenPasswordReset     TokenKind = "password_reset"
	TokenEmailVerification TokenKind = "email_verification"
)

// User is the identity record. Digests and secrets never leave the process.
type User struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	Email                    string     `json:"email"`
	Avatar                   string     `json:"avatar,omitempty"`
	Role                     Role       `json:"role"`
	Department               string     `json:"department,omitempty"`
	Position                 string     `json:"position,omitempty"`
	EmailVerified            bool       `json:"emailVerified"`
	Active                   bool       `json:"-"`
	Settings                 Settings   `json:"settings"`
	PasswordHash             string     `json:"-"`
	PasswordChangedAt        *time.Time `json:"-"`
	PasswordResetToken       string     `json:"-"`
	PasswordResetExpires     *time.Time `json:"-"`
	EmailVerificationToken   string     `json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`
	LoginAttempts            int        `json:"-"`
	LockUntil                *time.Time `json:"-"`
	TwoFactorSecret          string     `json:"-"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// IsLocked reports whether sign-in is currently suspended for the account.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// LockRemaining returns the time left on an active lock, rounded up to whole minutes.
func (u *User) LockRemaining(now time.Time) time.Duration {
	if !u.IsLocked(now) {
		return 0
	}
	d := u.LockUntil.Sub(now)
	if rem := d % time.Minute; rem != 0 {
		d += time.Minute - rem
	}
	return d
}

// ChangedPasswordAfter reports whether the password was changed after a token
// with the given issued-at was minted. Comparison is at second resolution.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

// TwoFactorEnabled reports whether sign-in requires a one-time code.
func (u *User) TwoFactorEnabled() bool {
	return u.Settings.Security.TwoFactorAuth && u.TwoFactorSecret != ""
}

// Settings holds per-user preferences.
type Settings struct {
	Notifications NotificationSettings `json:"notifications" bson:"notifications"`
	Appearance    AppearanceSettings   `json:"appearance" bson:"appearance"`
	Security      SecuritySettings     `json:"security" bson:"security"`
}

type NotificationSettings struct {
	Email            bool `json:"email" bson:"email"`
	TaskAssigned     bool `json:"taskAssigned" bson:"taskAssigned"`
	ProjectUpdates   bool `json:"projectUpdates" bson:"projectUpdates"`
	TeamChanges      bool `json:"teamChanges" bson:"teamChanges"`
	DueDateReminders bool `json:"dueDateReminders" bson:"dueDateReminders"`
}

type AppearanceSettings struct {
	Theme       string `json:"theme" bson:"theme"`
	CompactMode bool   `json:"compactMode" bson:"compactMode"`
}

type SecuritySettings struct {
	TwoFactorAuth bool `json:"twoFactorAuth" bson:"twoFactorAuth"`
}

// DefaultSettings returns the settings assigned at signup.
func DefaultSettings() Settings {
	return Settings{
		Notifications: NotificationSettings{
			Email:            true,
			TaskAssigned:     true,
			ProjectUpdates:   true,
			TeamChanges:      true,
			DueDateReminders: true,
		},
		Appearance: AppearanceSettings{Theme: "system"},
	}
}

// ValidTheme reports whether theme is a supported appearance theme.
func ValidTheme(theme string) bool {
	switch theme {
	case "light", "dark", "system":
		return true
	}
	return false
}

// ProfileUpdate lists the profile fields a user may change about themselves.
type ProfileUpdate struct {
	Name       *string
	Email      *string
	Department *string
	Position   *string
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
