package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for federated authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DirectoryConfig contains the external (Graph-style) user directory
// endpoint used for group, profile, and photo lookups.
type DirectoryConfig struct {
	BaseURL string        `env:"BASE_URL"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"5s"`
	Enabled bool          `env:"ENABLED"  envDefault:"true"`

	// Client-credentials grant used to obtain directory access tokens.
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envDefault:"https://graph.microsoft.com/.default" envSeparator:";"`
}

// DevAuthConfig controls the mock identity returned when AUTH_MODE=mock.
type DevAuthConfig struct {
	ExternalID string   `env:"EXTERNAL_ID" envDefault:"dev-user"`
	Email      string   `env:"EMAIL"       envDefault:"dev@example.com"`
	FirstName  string   `env:"FIRST_NAME"  envDefault:"Dev"`
	LastName   string   `env:"LAST_NAME"   envDefault:"User"`
	Roles      []string `env:"ROLES"       envDefault:"Vorstand_Intern" envSeparator:";"`
}

// LockoutConfig tunes the adaptive password-login lockout.
type LockoutConfig struct {
	// Threshold is the failed-attempt count at which lockout begins.
	Threshold int `env:"THRESHOLD" envDefault:"3"`

	// BackoffSchedule is the escalating lockout duration per attempt past
	// the threshold. The last entry caps further escalation.
	BackoffSchedule []time.Duration `env:"BACKOFF_SCHEDULE" envDefault:"1m;5m;15m;1h" envSeparator:";"`
}

// Sanitize enforces the lockout invariants: a positive threshold, a
// non-empty schedule, and monotonically non-decreasing backoff steps.
func (c *LockoutConfig) Sanitize() {
	if c.Threshold < 1 {
		c.Threshold = 3
	}
	if len(c.BackoffSchedule) == 0 {
		c.BackoffSchedule = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour}
	}
	for i := range c.BackoffSchedule {
		if c.BackoffSchedule[i] < time.Second {
			c.BackoffSchedule[i] = time.Second
		}
		if i > 0 && c.BackoffSchedule[i] < c.BackoffSchedule[i-1] {
			c.BackoffSchedule[i] = c.BackoffSchedule[i-1]
		}
	}
}

// ScheduleSeconds returns the backoff schedule in whole seconds, the form
// the data layer binds into its lockout statement.
func (c *LockoutConfig) ScheduleSeconds() []int64 {
	out := make([]int64, len(c.BackoffSchedule))
	for i, d := range c.BackoffSchedule {
		out[i] = int64(d / time.Second)
	}
	return out
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// Directory lookup configuration for group/profile/photo sync.
	Directory DirectoryConfig `envPrefix:"DIRECTORY_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Lockout configuration for password logins.
	Lockout LockoutConfig `envPrefix:"LOCKOUT_"`
}

// Sanitize applies guardrails to the auth sub-configs.
func (c *AuthConfig) Sanitize() {
	c.Lockout.Sanitize()
	if c.Directory.Timeout <= 0 {
		c.Directory.Timeout = 5 * time.Second
	}
}
