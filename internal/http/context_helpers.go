package httpx

import (
	"context"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type sessionKey struct{}

// timedOutKey marks requests whose previous session idled out and was destroyed.
type timedOutKey struct{}

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetUserSessionFromContext returns the user session from context and a boolean indicating presence.
func GetUserSessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}

// GetSessionFromContext retrieves the session from the request context.
// Maintained for convenience; prefer GetUserSessionFromContext when you need presence info.
func GetSessionFromContext(ctx context.Context) *domainauth.Session {
	if s, ok := GetUserSessionFromContext(ctx); ok {
		return s
	}
	return nil
}

// IsAnonymous reports whether the current request context has no signed-in subject.
func IsAnonymous(ctx context.Context) bool {
	s, ok := GetUserSessionFromContext(ctx)
	if !ok || s == nil {
		return true
	}
	return s.Anonymous()
}

// markSessionTimedOut flags the context so handlers can tell the visitor why
// they were signed out.
func markSessionTimedOut(ctx context.Context) context.Context {
	return context.WithValue(ctx, timedOutKey{}, true)
}

// SessionTimedOut reports whether the previous session idled out during this request.
func SessionTimedOut(ctx context.Context) bool {
	v, _ := ctx.Value(timedOutKey{}).(bool)
	return v
}
