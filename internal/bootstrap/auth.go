package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/alumniverein/intranet-api/config"
	"github.com/alumniverein/intranet-api/internal/adapters/devauth"
	"github.com/alumniverein/intranet-api/internal/adapters/msdirectory"
	"github.com/alumniverein/intranet-api/internal/adapters/oidc"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// buildAuthProvider selects the identity provider adapter by auth mode. Mock
// mode is refused outside development so a misconfigured deployment cannot
// silently accept everyone.
//
//nolint:ireturn // the caller only needs the port.
func buildAuthProvider(cfg *config.AppConfig, logger *slog.Logger) (ports.AuthProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		if !cfg.IsDev {
			return nil, errors.New("AUTH_MODE=mock requires development mode")
		}
		logger.Warn("using mock auth provider", "email", cfg.Auth.DevAuth.Email)
		provider, err := devauth.NewProvider(devauth.Config{
			ExternalID: cfg.Auth.DevAuth.ExternalID,
			Email:      cfg.Auth.DevAuth.Email,
			FirstName:  cfg.Auth.DevAuth.FirstName,
			LastName:   cfg.Auth.DevAuth.LastName,
			Roles:      cfg.Auth.DevAuth.Roles,
		})
		if err != nil {
			return nil, fmt.Errorf("init dev auth provider: %w", err)
		}
		return provider, nil
	case config.AuthModeOAuth:
		provider, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     cfg.Auth.OAuth.ClientID,
			ClientSecret: cfg.Auth.OAuth.ClientSecret,
			RedirectURL:  cfg.Auth.OAuth.RedirectURL,
			Scope:        cfg.Auth.OAuth.Scope,
			DiscoveryURL: cfg.Auth.OAuth.DiscoveryURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init oidc provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// directoryTokenSource adapts an oauth2 client-credentials config to the
// directory client's token source.
type directoryTokenSource struct {
	cfg *clientcredentials.Config
}

func (s directoryTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("directory token: %w", err)
	}
	return tok.AccessToken, nil
}

// buildDirectoryClient wires the Graph-style directory client, or returns nil
// when directory sync is disabled. Federated login degrades gracefully
// without it: token claims still drive role resolution.
//
//nolint:ireturn // the caller only needs the port.
func buildDirectoryClient(cfg config.DirectoryConfig, logger *slog.Logger) (ports.DirectoryClient, error) {
	if !cfg.Enabled || cfg.BaseURL == "" {
		logger.Info("directory sync disabled")
		return nil, nil
	}
	if cfg.TokenURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("directory client requires token URL, client ID, and client secret")
	}

	client, err := msdirectory.NewClient(msdirectory.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Token: directoryTokenSource{cfg: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("init directory client: %w", err)
	}
	return client, nil
}
