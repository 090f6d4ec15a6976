// Package msdirectory reads group memberships, profile fields, and photos
// from a Microsoft-Graph-style directory API.
package msdirectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/alumniverein/intranet-api/internal/ports"
)

// Config captures runtime configuration for the directory client.
type Config struct {
	// BaseURL is the directory API root, e.g. https://graph.microsoft.com/v1.0.
	BaseURL string
	// Token supplies a bearer token per request (client-credentials grant is
	// handled by the oauth2 token source wired in bootstrap).
	Token TokenSource
	// Timeout bounds each directory call; defaults to 5s. Directory reads sit
	// on the login path, so they must fail fast rather than hang the request.
	Timeout time.Duration
	Client  *http.Client
}

// TokenSource returns a bearer token for directory calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client fetches directory data over HTTP. All methods are synchronous and
// bounded by the configured timeout.
type Client struct {
	baseURL string
	token   TokenSource
	client  *http.Client
}

// JMESPath expressions plucking the interesting fields out of Graph-style
// JSON payloads.
const (
	groupNamesExpr = "value[].displayName"
	firstNameExpr  = "givenName"
	lastNameExpr   = "surname"
)

// NewClient constructs a directory client from config.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("directory base URL is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("directory token source is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: base, token: cfg.Token, client: hc}, nil
}

var _ ports.DirectoryClient = (*Client)(nil)

// FetchGroups returns the display names of the subject's group memberships.
func (c *Client) FetchGroups(ctx context.Context, externalID string) ([]string, error) {
	body, err := c.get(ctx, "/users/"+url.PathEscape(externalID)+"/memberOf")
	if err != nil {
		return nil, err
	}

	names, err := searchStrings(groupNamesExpr, body)
	if err != nil {
		return nil, fmt.Errorf("extract group names: %w", err)
	}
	return names, nil
}

// FetchProfile returns the directory profile fields mirrored locally.
func (c *Client) FetchProfile(ctx context.Context, externalID string) (ports.DirectoryProfile, error) {
	body, err := c.get(ctx, "/users/"+url.PathEscape(externalID))
	if err != nil {
		return ports.DirectoryProfile{}, err
	}

	first, err := searchString(firstNameExpr, body)
	if err != nil {
		return ports.DirectoryProfile{}, fmt.Errorf("extract given name: %w", err)
	}
	last, err := searchString(lastNameExpr, body)
	if err != nil {
		return ports.DirectoryProfile{}, fmt.Errorf("extract surname: %w", err)
	}
	return ports.DirectoryProfile{FirstName: first, LastName: last}, nil
}

// FetchPhoto returns the raw profile photo bytes, or nil when the subject has
// no photo.
func (c *Client) FetchPhoto(ctx context.Context, externalID string) ([]byte, error) {
	req, err := c.newRequest(ctx, "/users/"+url.PathEscape(externalID)+"/photo/$value")
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory photo request: %w", err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory photo request: unexpected status %d", resp.StatusCode)
	}

	const maxPhotoBytes = 4 << 20
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}

// get performs an authenticated GET and decodes the JSON body into a generic
// document for JMESPath extraction.
func (c *Client) get(ctx context.Context, path string) (any, error) {
	req, err := c.newRequest(ctx, path)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request %s: %w", path, err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory request %s: unexpected status %d", path, resp.StatusCode)
	}

	var doc any
	if decodeErr := json.NewDecoder(resp.Body).Decode(&doc); decodeErr != nil {
		return nil, fmt.Errorf("decode directory response: %w", decodeErr)
	}
	return doc, nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	token, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// searchStrings evaluates a JMESPath expression expected to yield a string
// list. Non-string elements are skipped.
func searchStrings(expr string, doc any) ([]string, error) {
	result, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, err
	}
	raw, ok := result.([]any)
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			names = append(names, s)
		}
	}
	return names, nil
}

// searchString evaluates a JMESPath expression expected to yield a string.
func searchString(expr string, doc any) (string, error) {
	result, err := jmespath.Search(expr, doc)
	if err != nil {
		return "", err
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return "", nil
}

func closeBody(body io.ReadCloser) {
	// Draining lets the transport reuse the connection.
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
