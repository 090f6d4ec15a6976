// Package authroles resolves internal roles from external IdP role and group
// signals.
package authroles

import (
	"strings"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
)

// externalRoleMapping maps external role/group display strings to internal
// roles. The directory exposes several casing and spacing variants for the
// same role, so multiple keys map to one internal role. Lookups try the
// signal as given, then lowercased.
var externalRoleMapping = map[string]domainauth.Role{
	"Vorstand_Intern":   domainauth.RoleBoardInternal,
	"vorstand_intern":   domainauth.RoleBoardInternal,
	"Vorstand Intern":   domainauth.RoleBoardInternal,
	"Vorstand_Extern":   domainauth.RoleBoardExternal,
	"vorstand_extern":   domainauth.RoleBoardExternal,
	"Vorstand Extern":   domainauth.RoleBoardExternal,
	"Vorstand_Finanzen": domainauth.RoleBoardFinance,
	"vorstand_finanzen": domainauth.RoleBoardFinance,
	"Finanzvorstand":    domainauth.RoleBoardFinance,
	"Ressortleiter":     domainauth.RoleHead,
	"ressortleiter":     domainauth.RoleHead,
	"Head":              domainauth.RoleHead,
	"Manager":           domainauth.RoleManager,
	"manager":           domainauth.RoleManager,
	"Projektleiter":     domainauth.RoleManager,
	"Alumni":            domainauth.RoleAlumni,
	"alumni":            domainauth.RoleAlumni,
	"Alumni_Finanz":     domainauth.RoleAlumniAuditor,
	"alumni_finanz":     domainauth.RoleAlumniAuditor,
	"Alumni Finanz":     domainauth.RoleAlumniAuditor,
	"Ehrenmitglied":     domainauth.RoleHonoraryMember,
	"ehrenmitglied":     domainauth.RoleHonoraryMember,
	"Mitglied":          domainauth.RoleMember,
	"mitglied":          domainauth.RoleMember,
	"member":            domainauth.RoleMember,
	"Anwaerter":         domainauth.RoleCandidate,
	"anwaerter":         domainauth.RoleCandidate,
	"Trainee":           domainauth.RoleCandidate,
	"candidate":         domainauth.RoleCandidate,
}

// rolePriority orders internal roles by specificity of the federated signal
// and is used ONLY to pick one role when several signals apply. It is
// intentionally independent from the RoleHierarchy access levels in
// internal/domain/auth: alumni_auditor outranks manager and head here even
// though it sits at a lower access level, because the auditor group is the
// more specific directory assignment. Higher value wins.
var rolePriority = map[domainauth.Role]int{
	domainauth.RoleBoardFinance:   100,
	domainauth.RoleBoardInternal:  90,
	domainauth.RoleBoardExternal:  80,
	domainauth.RoleAlumniAuditor:  70,
	domainauth.RoleManager:        60,
	domainauth.RoleHead:           50,
	domainauth.RoleHonoraryMember: 40,
	domainauth.RoleAlumni:         30,
	domainauth.RoleMember:         20,
	domainauth.RoleCandidate:      10,
}

// PriorityResolver picks the highest-priority internal role among all
// external signals that map to a known role.
type PriorityResolver struct{}

// Resolve normalizes each signal (as given, then lowercased) against the
// external role mapping and returns the mapped role with the highest
// priority. The second return is false when no signal resolves.
func (PriorityResolver) Resolve(signals []string) (domainauth.Role, bool) {
	var (
		best     domainauth.Role
		bestPrio int
		found    bool
	)
	for _, signal := range signals {
		role, ok := mapSignal(signal)
		if !ok {
			continue
		}
		prio := rolePriority[role]
		if !found || prio > bestPrio {
			best, bestPrio, found = role, prio, true
		}
	}
	return best, found
}

// mapSignal maps one external signal to an internal role, trying the raw
// string first and the lowercased form second.
func mapSignal(signal string) (domainauth.Role, bool) {
	s := strings.TrimSpace(signal)
	if s == "" {
		return "", false
	}
	if role, ok := externalRoleMapping[s]; ok {
		return role, true
	}
	if role, ok := externalRoleMapping[strings.ToLower(s)]; ok {
		return role, true
	}
	return "", false
}
