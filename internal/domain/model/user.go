//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/alumniverein/intranet-api/internal/domain/auth"
)

// User is the credential and profile record for a member account. The
// credential fields (PasswordHash, FailedLogins, LockedUntil, TOTPSecret,
// TOTPEnabled) are owned by the authentication services and mutated only
// through UserRepo operations.
type User struct {
	ID           int64     `json:"id"            db:"id"`
	Email        string    `json:"email"         db:"email"`
	PasswordHash string    `json:"-"             db:"password_hash"`
	FirstName    string    `json:"first_name"    db:"first_name"`
	LastName     string    `json:"last_name"     db:"last_name"`
	Role         auth.Role `json:"role"          db:"role"`

	// Lockout state for the adaptive password-login backoff.
	FailedLogins int        `json:"-" db:"failed_logins"`
	LockedUntil  *time.Time `json:"-" db:"locked_until"`

	// Second factor (TOTP). Secret is set once enrolled; Enabled gates use.
	TOTPSecret  *string `json:"-" db:"totp_secret"`
	TOTPEnabled bool    `json:"-" db:"totp_enabled"`

	// Federated-identity linkage; set when the account has signed in via SSO.
	ExternalID *string `json:"external_id,omitempty" db:"external_id"`

	// ProfileIncomplete routes freshly provisioned accounts through the
	// registration-completion flow. Never touched by federated re-login.
	ProfileIncomplete bool `json:"profile_incomplete" db:"profile_incomplete"`

	// Notification preferences, defaulted on provisioning.
	NotifyNews   bool `json:"notify_news"   db:"notify_news"`
	NotifyEvents bool `json:"notify_events" db:"notify_events"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Locked reports whether an active lockout window covers the given instant.
func (u *User) Locked(at time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(at)
}

// LockedFor returns the remaining lockout duration at the given instant,
// zero when no lockout is active.
func (u *User) LockedFor(at time.Time) time.Duration {
	if !u.Locked(at) {
		return 0
	}
	return u.LockedUntil.Sub(at)
}

// SecondFactorRequired reports whether password login must be followed by a
// TOTP code for this account.
func (u *User) SecondFactorRequired() bool {
	return u.TOTPEnabled && u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// Validate checks invariants before inserting a new user.
func (u *User) Validate() error {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return errors.New("email is required and cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email must be a valid address")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !auth.Known(u.Role) {
		return errors.New("role must be a known internal role")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for lookups; accounts are
// keyed case-insensitively by address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
