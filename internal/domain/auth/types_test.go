package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Authenticated(t *testing.T) {
	anon := Session{ID: "abc", CreatedAt: time.Now(), CSRFToken: "tok"}
	assert.False(t, anon.Authenticated())
	assert.True(t, anon.Anonymous())

	// Partially populated payloads never count as authenticated.
	assert.False(t, Session{ID: "abc", SubjectID: 7}.Authenticated())
	assert.False(t, Session{ID: "abc", Role: RoleMember}.Authenticated())

	full := Session{ID: "abc", SubjectID: 7, Role: RoleMember}
	assert.True(t, full.Authenticated())
	assert.False(t, full.Anonymous())
}

func TestSession_AnonymousWithOAuthState(t *testing.T) {
	s := Session{ID: "abc", CSRFToken: "tok", OAuthState: "state-123"}
	assert.True(t, s.Anonymous())
}
