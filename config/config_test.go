package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, AuthModeOAuth, cfg.Auth.Mode)
	assert.Equal(t, 3, cfg.Auth.Lockout.Threshold)
	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour},
		cfg.Auth.Lockout.BackoffSchedule)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Session.RotateAfter)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.True(t, cfg.Postgres.RunMigrationsOnStart)
	assert.Equal(t, "localhost:6379", cfg.Redis.URI)
	assert.False(t, cfg.Observability.Metrics.IsEnabled())
}

func TestAuthModeUnmarshal(t *testing.T) {
	tests := []struct {
		input   string
		want    AuthMode
		wantErr bool
	}{
		{input: "oauth", want: AuthModeOAuth},
		{input: "OAuth", want: AuthModeOAuth},
		{input: "mock", want: AuthModeMock},
		{input: "MOCK", want: AuthModeMock},
		{input: "saml", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var mode AuthMode
			err := mode.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestAuthModeFromEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("DEV_AUTH_ROLES", "Mitglied;Vorstand_Intern")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, AuthModeMock, cfg.Auth.Mode)
	assert.Equal(t, []string{"Mitglied", "Vorstand_Intern"}, cfg.Auth.DevAuth.Roles)
}

func TestLockoutSanitizeEnforcesMonotonicSchedule(t *testing.T) {
	cfg := LockoutConfig{
		Threshold:       0,
		BackoffSchedule: []time.Duration{5 * time.Minute, time.Minute, 0},
	}
	cfg.Sanitize()

	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute, 5 * time.Minute}, cfg.BackoffSchedule)
}

func TestLockoutSanitizeFillsEmptySchedule(t *testing.T) {
	cfg := LockoutConfig{Threshold: 5}
	cfg.Sanitize()

	assert.Equal(t, 5, cfg.Threshold)
	require.Len(t, cfg.BackoffSchedule, 4)
	assert.Equal(t, time.Minute, cfg.BackoffSchedule[0])
	assert.Equal(t, time.Hour, cfg.BackoffSchedule[3])
}

func TestLockoutScheduleSeconds(t *testing.T) {
	cfg := LockoutConfig{
		BackoffSchedule: []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour},
	}
	assert.Equal(t, []int64{60, 300, 900, 3600}, cfg.ScheduleSeconds())
}

func TestSessionSanitizeClampsDurations(t *testing.T) {
	cfg := SessionConfig{IdleTimeout: -1, RotateAfter: 0, TTL: time.Minute}
	cfg.Sanitize()

	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Minute, cfg.RotateAfter)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}

func TestSessionSanitizeKeepsValidValues(t *testing.T) {
	cfg := SessionConfig{IdleTimeout: 10 * time.Minute, RotateAfter: time.Hour, TTL: 12 * time.Hour}
	cfg.Sanitize()

	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.RotateAfter)
	assert.Equal(t, 12*time.Hour, cfg.TTL)
}

func TestMetricsSanitizeDisablesWithoutAddress(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()

	assert.False(t, cfg.IsEnabled())
	assert.Empty(t, cfg.StatsdAddress)
}

func TestDetectDevModeFromNodeEnv(t *testing.T) {
	t.Setenv("NODE_ENV", "development")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.True(t, cfg.IsDev)
}

func TestDevFlagWins(t *testing.T) {
	t.Setenv("DEV", "true")
	t.Setenv("NODE_ENV", "production")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.True(t, cfg.IsDev)
}
