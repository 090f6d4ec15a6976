package config

import "time"

// SessionConfig tunes the server-side session lifecycle.
type SessionConfig struct {
	// IdleTimeout destroys sessions untouched for this long.
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	// RotateAfter re-keys session identifiers older than this.
	RotateAfter time.Duration `env:"SESSION_ROTATE_AFTER" envDefault:"30m"`

	// TTL is the absolute store expiry; it must outlive the idle timeout
	// so the idle check, not store eviction, decides staleness.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

// Sanitize clamps session durations to sane bounds.
func (c *SessionConfig) Sanitize() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.RotateAfter <= 0 {
		c.RotateAfter = 30 * time.Minute
	}
	if c.TTL < c.IdleTimeout {
		c.TTL = 24 * time.Hour
	}
}
