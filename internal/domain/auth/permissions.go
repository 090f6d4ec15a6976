package auth

// RoleHierarchy assigns each internal role an access level. The hierarchy is
// a static total order: a session passes a level check when its role's level
// is at least the required role's level. Unknown roles compare as no access.
//
// This table is deliberately independent from the federated RolePriority
// ordering in internal/adapters/authroles, which ranks roles by specificity
// of the IdP signal, not by access level.
var roleLevels = map[Role]int{
	RoleCandidate:      1,
	RoleMember:         1,
	RoleAlumni:         1,
	RoleHonoraryMember: 1,
	RoleAlumniAuditor:  1,
	RoleHead:           2,
	RoleManager:        2,
	RoleBoardInternal:  3,
	RoleBoardExternal:  3,
	RoleBoardFinance:   3,
}

// boardLevel is the access level shared by all board sub-roles.
const boardLevel = 3

// Level returns the access level for a role and whether the role is known.
func Level(r Role) (int, bool) {
	lvl, ok := roleLevels[r]
	return lvl, ok
}

// Known reports whether r is a role the system recognizes.
func Known(r Role) bool {
	_, ok := roleLevels[r]
	return ok
}

// HasLevel reports whether a session with role have meets the access level of
// required. Both roles must be known or the check fails.
func HasLevel(have, required Role) bool {
	haveLvl, ok := roleLevels[have]
	if !ok {
		return false
	}
	reqLvl, ok := roleLevels[required]
	if !ok {
		return false
	}
	return haveLvl >= reqLvl
}

// HasExactRole reports whether have matches want exactly. The legacy aliases
// "admin" and "board" match any role at board level.
func HasExactRole(have Role, want string) bool {
	if want == AliasAdmin || want == AliasBoard {
		lvl, ok := roleLevels[have]
		return ok && lvl == boardLevel
	}
	return string(have) == want
}

// IsBoard reports whether the role sits at board level.
func IsBoard(r Role) bool {
	lvl, ok := roleLevels[r]
	return ok && lvl == boardLevel
}

// CanManageInvoices is restricted to the finance board seat; no other board
// member may touch invoicing.
func CanManageInvoices(r Role) bool { return r == RoleBoardFinance }

// CanManageUsers requires board level.
func CanManageUsers(r Role) bool { return HasLevel(r, RoleBoardInternal) }

// CanSeeStats requires head level or above.
func CanSeeStats(r Role) bool { return HasLevel(r, RoleHead) }

// Session-level permission helpers so handlers can ask the active session
// directly. Capabilities are derived from the role tables, never stored, so
// adding one is a new predicate rather than a data migration.

func (s Session) HasLevel(required Role) bool     { return s.Authenticated() && HasLevel(s.Role, required) }

// MeetsLevel reports whether the session role sits at or above the numeric
// access level (1 member, 2 leadership, 3 board).
func (s Session) MeetsLevel(level int) bool {
	if !s.Authenticated() {
		return false
	}
	have, ok := Level(s.Role)
	return ok && have >= level
}
func (s Session) HasExactRole(want string) bool   { return s.Authenticated() && HasExactRole(s.Role, want) }
func (s Session) IsBoard() bool                   { return s.Authenticated() && IsBoard(s.Role) }
func (s Session) CanManageInvoices() bool         { return s.Authenticated() && CanManageInvoices(s.Role) }
func (s Session) CanManageUsers() bool            { return s.Authenticated() && CanManageUsers(s.Role) }
func (s Session) CanSeeStats() bool               { return s.Authenticated() && CanSeeStats(s.Role) }
