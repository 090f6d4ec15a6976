package auth

// Package auth contains domain-level types for identity, sessions, and roles.
// It is pure and free of framework/adapter concerns.

import "time"

// Role represents an internal application role.
// Keep string form for easy persistence and cookies.
// Valid values are defined as constants below.
type Role string

const (
	RoleCandidate      Role = "candidate"
	RoleMember         Role = "member"
	RoleAlumni         Role = "alumni"
	RoleHonoraryMember Role = "honorary_member"
	RoleAlumniAuditor  Role = "alumni_auditor"
	RoleHead           Role = "head"
	RoleManager        Role = "manager"
	RoleBoardInternal  Role = "board_internal"
	RoleBoardExternal  Role = "board_external"
	RoleBoardFinance   Role = "board_finance"
)

// Role aliases accepted by HasExactRole for backward compatibility with
// older pages that checked "admin" or "board" instead of a concrete
// board sub-role. Both expand to "any role at board level".
const (
	AliasAdmin = "admin"
	AliasBoard = "board"
)

// Identity represents the authenticated principal returned by the IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	ExternalID string // stable subject identifier at the IdP (oid or sub)
	Email      string
	FirstName  string
	LastName   string
	AppRoles   []string // app-role claims embedded in the token
	ClaimKeys  []string // names of claims present, for diagnostics (never values)
}

// Session is the server-side record persisted for each visitor.
// A session is either fully authenticated (SubjectID and Role set) or
// anonymous (only CSRF token, optionally an in-flight OAuth state).
type Session struct {
	ID         string    `json:"id"`
	SubjectID  int64     `json:"subject_id,omitempty"`
	Role       Role      `json:"role,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CSRFToken  string    `json:"csrf_token,omitempty"`
	OAuthState string    `json:"oauth_state,omitempty"`
}

// Authenticated reports whether the session carries a signed-in subject.
func (s Session) Authenticated() bool { return s.SubjectID != 0 && s.Role != "" }

// Anonymous is the inverse of Authenticated.
func (s Session) Anonymous() bool { return !s.Authenticated() }
