package oidc

// Package oidc drives the OAuth/OIDC authorization-code flow against the
// external identity provider and maps its claims into domain identities.

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
)

// Provider implements ports.AuthProvider using go-oidc and oauth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional; defaults to a client with a short timeout
}

// NewProvider creates the OIDC provider, performing a single discovery fetch.
// Missing configuration secrets are a hard failure, never a degraded mode.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, apperrors.New(apperrors.ErrCodeMissingConfig, "oidc client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, apperrors.New(apperrors.ErrCodeMissingConfig, "oidc client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, apperrors.New(apperrors.ErrCodeMissingConfig, "oidc redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, apperrors.New(apperrors.ErrCodeMissingConfig, "oidc discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		// Token exchange and discovery are synchronous on the login path;
		// bound them tightly so a slow IdP fails the login instead of
		// hanging the request.
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	p := &Provider{httpClient: httpClient}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       strings.Fields(config.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// AuthCodeURL builds the authorization endpoint redirect carrying the
// anti-forgery state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange trades the authorization code for tokens, verifies the ID token,
// and extracts identity claims.
func (p *Provider) Exchange(ctx context.Context, code string) (domainauth.Identity, error) {
	if code == "" {
		return domainauth.Identity{}, apperrors.New(apperrors.ErrCodeMissingCode, "authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeProviderError, "exchange code for token")
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return domainauth.Identity{}, apperrors.New(apperrors.ErrCodeProviderError, "missing id_token in token response")
	}

	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeProviderError, "verify id_token")
	}

	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return domainauth.Identity{}, apperrors.Wrap(claimsErr, apperrors.ErrCodeProviderError, "parse id_token claims")
	}

	return mapClaims(claims), nil
}

// idTokenClaims is a superset of the standard OIDC claims and the vendor
// shapes the directory emits. Email and name fields each have a fallback
// chain, applied in mapClaims.
type idTokenClaims struct {
	Sub               string   `json:"sub"`
	OID               string   `json:"oid"`
	Email             string   `json:"email"`
	PreferredUsername string   `json:"preferred_username"`
	UPN               string   `json:"upn"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	FirstName         string   `json:"firstname"`
	LastName          string   `json:"lastname"`
	Roles             []string `json:"roles"`
}

// mapClaims maps raw ID-token claims into an Identity using the fallback
// chains: email → preferred_username → upn, standard name claims with the
// vendor firstname/lastname shape second, oid → sub for the stable subject.
func mapClaims(c idTokenClaims) domainauth.Identity {
	return domainauth.Identity{
		ExternalID: firstNonEmpty(c.OID, c.Sub),
		Email:      firstNonEmpty(c.Email, c.PreferredUsername, c.UPN),
		FirstName:  firstNonEmpty(c.GivenName, c.FirstName),
		LastName:   firstNonEmpty(c.FamilyName, c.LastName),
		AppRoles:   append([]string(nil), c.Roles...),
		ClaimKeys:  presentClaimKeys(c),
	}
}

// presentClaimKeys lists which claims were present, for diagnostics when no
// email resolves. Values are never included.
func presentClaimKeys(c idTokenClaims) []string {
	var keys []string
	add := func(name, value string) {
		if value != "" {
			keys = append(keys, name)
		}
	}
	add("sub", c.Sub)
	add("oid", c.OID)
	add("email", c.Email)
	add("preferred_username", c.PreferredUsername)
	add("upn", c.UPN)
	add("given_name", c.GivenName)
	add("family_name", c.FamilyName)
	add("firstname", c.FirstName)
	add("lastname", c.LastName)
	if len(c.Roles) > 0 {
		keys = append(keys, "roles")
	}
	return keys
}

// firstNonEmpty returns the first non-empty string from vals.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
