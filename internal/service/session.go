package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/ports"
)

const (
	// DefaultIdleTimeout is how long a session may sit untouched before it
	// is destroyed on the next request.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultRotateAfter is the session age at which the identifier is
	// re-keyed on the next request.
	DefaultRotateAfter = 30 * time.Minute

	// DefaultSessionTTL is the absolute store expiry. It outlives the idle
	// timeout so the idle check, not Redis eviction, decides staleness.
	DefaultSessionTTL = 24 * time.Hour

	csrfTokenBytes = 32
)

// SessionManagerOptions groups dependencies and tuning for SessionManager.
// Zero durations fall back to the defaults above.
type SessionManagerOptions struct {
	Store       ports.SessionStore
	IdleTimeout time.Duration
	RotateAfter time.Duration
	TTL         time.Duration
	Clock       func() time.Time
}

// SessionManager owns the session lifecycle: creation, idle expiry,
// periodic identifier rotation, privilege establishment, and teardown.
// All mutations go through the backing store so concurrent requests on
// other sessions are never affected.
type SessionManager struct {
	store       ports.SessionStore
	idleTimeout time.Duration
	rotateAfter time.Duration
	ttl         time.Duration
	clock       func() time.Time
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	m := &SessionManager{
		store:       opts.Store,
		idleTimeout: opts.IdleTimeout,
		rotateAfter: opts.RotateAfter,
		ttl:         opts.TTL,
		clock:       opts.Clock,
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = DefaultIdleTimeout
	}
	if m.rotateAfter <= 0 {
		m.rotateAfter = DefaultRotateAfter
	}
	if m.ttl <= 0 {
		m.ttl = DefaultSessionTTL
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m
}

// Start creates and persists a fresh anonymous session. The CSRF token is
// generated once here and lives in the session payload for its lifetime.
func (m *SessionManager) Start(ctx context.Context) (domainauth.Session, error) {
	now := m.clock()
	token, err := newCSRFToken()
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("generate csrf token: %w", err)
	}

	sess := domainauth.Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		LastSeenAt: now,
		CSRFToken:  token,
	}
	if putErr := m.store.Put(ctx, sess, m.ttl); putErr != nil {
		return domainauth.Session{}, fmt.Errorf("persist session: %w", putErr)
	}
	return sess, nil
}

// Get loads a session by identifier.
func (m *SessionManager) Get(ctx context.Context, id string) (domainauth.Session, error) {
	return m.store.Get(ctx, id)
}

// Touch enforces the idle timeout and refreshes the activity timestamp. A
// session idle for longer than the timeout is destroyed and a session_timeout
// error returned; the caller must treat the visitor as signed out.
func (m *SessionManager) Touch(ctx context.Context, sess domainauth.Session) (domainauth.Session, error) {
	now := m.clock()
	if now.Sub(sess.LastSeenAt) > m.idleTimeout {
		if destroyErr := m.store.Destroy(ctx, sess.ID); destroyErr != nil {
			return domainauth.Session{}, fmt.Errorf("destroy idle session: %w", destroyErr)
		}
		return domainauth.Session{}, apperrors.New(apperrors.ErrCodeSessionTimeout, "session timed out")
	}

	sess.LastSeenAt = now
	if err := m.store.Put(ctx, sess, m.ttl); err != nil {
		return domainauth.Session{}, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// RotateIfStale re-keys sessions older than the rotation interval. Rotation
// is skipped while an OAuth state is in flight: changing the identifier
// mid-handshake would orphan the state and break the callback.
func (m *SessionManager) RotateIfStale(ctx context.Context, sess domainauth.Session) (domainauth.Session, bool, error) {
	if sess.OAuthState != "" {
		return sess, false, nil
	}
	now := m.clock()
	if now.Sub(sess.CreatedAt) < m.rotateAfter {
		return sess, false, nil
	}

	newID, err := m.store.Rotate(ctx, sess.ID)
	if err != nil {
		return domainauth.Session{}, false, fmt.Errorf("rotate session: %w", err)
	}
	sess.ID = newID
	sess.CreatedAt = now
	if putErr := m.store.Put(ctx, sess, m.ttl); putErr != nil {
		return domainauth.Session{}, false, fmt.Errorf("persist rotated session: %w", putErr)
	}
	return sess, true, nil
}

// Establish upgrades a session to an authenticated one. The identifier is
// always rotated first so a pre-login identifier never becomes a signed-in
// session (session fixation).
func (m *SessionManager) Establish(
	ctx context.Context,
	sess domainauth.Session,
	subjectID int64,
	role domainauth.Role,
) (domainauth.Session, error) {
	newID, err := m.store.Rotate(ctx, sess.ID)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("rotate session: %w", err)
	}

	now := m.clock()
	sess.ID = newID
	sess.SubjectID = subjectID
	sess.Role = role
	sess.OAuthState = ""
	sess.CreatedAt = now
	sess.LastSeenAt = now
	if putErr := m.store.Put(ctx, sess, m.ttl); putErr != nil {
		return domainauth.Session{}, fmt.Errorf("persist established session: %w", putErr)
	}
	return sess, nil
}

// Save persists the session payload as-is. Used by flows that mutate
// payload fields (OAuth state) without touching the lifecycle timestamps.
func (m *SessionManager) Save(ctx context.Context, sess domainauth.Session) error {
	return m.store.Put(ctx, sess, m.ttl)
}

// Destroy removes a session.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Destroy(ctx, id)
}

// VerifyCSRF checks a presented token against the session's token in
// constant time. A session without a token, or an empty presentation,
// always fails.
func (m *SessionManager) VerifyCSRF(sess domainauth.Session, presented string) bool {
	if sess.CSRFToken == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(presented)) == 1
}

// NewOAuthState returns a fresh single-use anti-forgery state value.
func NewOAuthState() (string, error) {
	return randomToken()
}

func newCSRFToken() (string, error) {
	return randomToken()
}

func randomToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.New("entropy source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
