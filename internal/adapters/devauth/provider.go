package devauth

// Package devauth provides a config-driven AuthProvider for local development.
// It short-circuits the IdP round trip by redirecting straight back to our
// own callback; Exchange ignores the code and returns the configured identity.

import (
	"context"
	"errors"
	"net/url"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
)

// Config controls the dev auth provider identity.
type Config struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Roles      []string
}

// Provider implements ports.AuthProvider for local development.
type Provider struct {
	identity domainauth.Identity
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	externalID := cfg.ExternalID
	if externalID == "" {
		externalID = "dev-" + cfg.Email
	}
	return &Provider{
		identity: domainauth.Identity{
			ExternalID: externalID,
			Email:      cfg.Email,
			FirstName:  cfg.FirstName,
			LastName:   cfg.LastName,
			AppRoles:   append([]string(nil), cfg.Roles...),
			ClaimKeys:  []string{"sub", "email"},
		},
	}, nil
}

// AuthCodeURL returns a local callback URL; the standard handler expects
// GET /auth/callback?code=...&state=...
func (p *Provider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("code", "dev")
	q.Set("state", state)
	return "/auth/callback?" + q.Encode()
}

// Exchange ignores the code (state validation happens in the service) and
// returns the configured dev identity.
func (p *Provider) Exchange(_ context.Context, _ string) (domainauth.Identity, error) {
	return p.identity, nil
}
