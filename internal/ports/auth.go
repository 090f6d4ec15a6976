package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration
// in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
)

// ErrUserNotFound is returned by UserRepository when no account matches.
var ErrUserNotFound = errors.New("user not found")

// ErrSessionNotFound is returned by SessionStore when no session exists
// under the given identifier.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists session payloads under opaque identifiers. The store
// must provide per-key atomicity; each request only ever reads and writes its
// own session key.
type SessionStore interface {
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Put(ctx context.Context, sess domainauth.Session, ttl time.Duration) error

	// Rotate re-keys the session under a fresh identifier carrying over the
	// full payload, and returns the new identifier. The old key is destroyed.
	Rotate(ctx context.Context, oldID string) (string, error)

	Destroy(ctx context.Context, id string) error
}

// AuthProvider drives the OAuth/OIDC authorization-code flow against the
// external identity provider.
type AuthProvider interface {
	// AuthCodeURL builds the authorization endpoint redirect for the given
	// anti-forgery state value.
	AuthCodeURL(state string) string

	// Exchange trades the authorization code for tokens and returns the
	// extracted identity claims.
	Exchange(ctx context.Context, code string) (domainauth.Identity, error)
}

// DirectoryClient reads the external user directory. FetchGroups feeds role
// resolution; profile and photo reads feed best-effort synchronization.
type DirectoryClient interface {
	FetchGroups(ctx context.Context, externalID string) ([]string, error)
	FetchProfile(ctx context.Context, externalID string) (DirectoryProfile, error)
	FetchPhoto(ctx context.Context, externalID string) ([]byte, error)
}

// DirectoryProfile carries the directory fields mirrored into local accounts.
type DirectoryProfile struct {
	FirstName string
	LastName  string
}

// RoleResolver picks one internal role from the external role/group signals
// gathered during federated login. The second return is false when no signal
// maps to a known role.
type RoleResolver interface {
	Resolve(signals []string) (domainauth.Role, bool)
}

// SecondFactor validates a time-based one-time code against a stored secret.
// Implementations are pure over (secret, code, at); malformed codes return
// false rather than an error.
type SecondFactor interface {
	Verify(secret, code string, at time.Time) bool
}

// FederatedUpdate groups the fields rewritten on every federated login.
type FederatedUpdate struct {
	Role       domainauth.Role
	ExternalID string
}

// UserRepository is the user directory store consumed by the authentication
// services.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// RegisterFailedLogin atomically increments the failed-attempt counter
	// and, once the configured threshold is reached, sets the lockout expiry
	// from the escalating backoff schedule. It returns the updated counter
	// and lockout expiry so concurrent failures cannot both escape lockout.
	RegisterFailedLogin(ctx context.Context, id int64, now time.Time) (attempts int, lockedUntil *time.Time, err error)

	// ResetLockout clears the failed-attempt counter and lockout expiry.
	ResetLockout(ctx context.Context, id int64) error

	// UpdateAfterFederatedLogin rewrites role and federated linkage, leaving
	// the profile-completeness flag untouched.
	UpdateAfterFederatedLogin(ctx context.Context, id int64, upd FederatedUpdate) error

	// UpdateSyncedProfile mirrors directory profile fields; best-effort.
	UpdateSyncedProfile(ctx context.Context, id int64, profile DirectoryProfile) error

	// SavePhoto stores the directory photo for the account; best-effort.
	SavePhoto(ctx context.Context, id int64, photo []byte) error

	Insert(ctx context.Context, u *model.User) (int64, error)
}

// AuditEvent is a single audit-trail entry.
type AuditEvent struct {
	SubjectID *int64
	Action    string
	Detail    string
	IP        string
	UserAgent string
}

// AuditSink records authentication events. Recording is best-effort; sinks
// swallow and log their own failures so auditing never breaks a login.
type AuditSink interface {
	Record(ctx context.Context, e AuditEvent)
}
