package auth

import (
	"fmt"
	"strings"
)

// OrgRole is an organization-scoped role. A user holds at most one per organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"  // Created the organization, full control
	OrgRoleAdmin  OrgRole = "admin"  // Manages members, teams and settings
	OrgRoleMember OrgRole = "member" // Regular member
)

// TeamRole is a team-scoped role, independent of the organization role.
type TeamRole string

const (
	TeamRoleManager    TeamRole = "manager"
	TeamRoleTechnician TeamRole = "technician"
	TeamRoleRequestor  TeamRole = "requestor"
	TeamRoleViewer     TeamRole = "viewer"
)

// orgRoleRank orders organization roles; higher is more privileged.
var orgRoleRank = map[OrgRole]int{
	OrgRoleMember: 1,
	OrgRoleAdmin:  2,
	OrgRoleOwner:  3,
}

// teamRoleRank orders team roles; higher is more privileged.
var teamRoleRank = map[TeamRole]int{
	TeamRoleViewer:     1,
	TeamRoleRequestor:  2,
	TeamRoleTechnician: 3,
	TeamRoleManager:    4,
}

// ParseOrgRole parses a stored organization role.
// "manager" is accepted as the legacy spelling of admin.
func ParseOrgRole(s string) (OrgRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return OrgRoleOwner, nil
	case "admin", "manager":
		return OrgRoleAdmin, nil
	case "member":
		return OrgRoleMember, nil
	default:
		return "", fmt.Errorf("unknown organization role %q", s)
	}
}

// ParseTeamRole parses a stored team role.
// "creator" is accepted as the legacy spelling of requestor.
func ParseTeamRole(s string) (TeamRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manager":
		return TeamRoleManager, nil
	case "technician":
		return TeamRoleTechnician, nil
	case "requestor", "creator":
		return TeamRoleRequestor, nil
	case "viewer":
		return TeamRoleViewer, nil
	default:
		return "", fmt.Errorf("unknown team role %q", s)
	}
}

// Valid reports whether r is a known organization role.
func (r OrgRole) Valid() bool {
	_, ok := orgRoleRank[r]
	return ok
}

// Valid reports whether r is a known team role.
func (r TeamRole) Valid() bool {
	_, ok := teamRoleRank[r]
	return ok
}

// AtLeast reports whether r is as privileged as min. Unknown roles never qualify.
func (r OrgRole) AtLeast(min OrgRole) bool {
	return r.Valid() && min.Valid() && orgRoleRank[r] >= orgRoleRank[min]
}

// AtLeast reports whether r is as privileged as min. Unknown roles never qualify.
func (r TeamRole) AtLeast(min TeamRole) bool {
	return r.Valid() && min.Valid() && teamRoleRank[r] >= teamRoleRank[min]
}

// CompareOrgRoles returns -1, 0 or 1 as a is less, equally or more privileged than b.
// Unknown roles sort below every known role.
func CompareOrgRoles(a, b OrgRole) int {
	return compareRank(orgRoleRank[a], orgRoleRank[b])
}

// CompareTeamRoles returns -1, 0 or 1 as a is less, equally or more privileged than b.
// Unknown roles sort below every known role.
func CompareTeamRoles(a, b TeamRole) int {
	return compareRank(teamRoleRank[a], teamRoleRank[b])
}

// HighestTeamRole returns the most privileged of roles, or "" for none.
func HighestTeamRole(roles ...TeamRole) TeamRole {
	var best TeamRole
	for _, r := range roles {
		if !r.Valid() {
			continue
		}
		if best == "" || CompareTeamRoles(r, best) > 0 {
			best = r
		}
	}
	return best
}

func compareRank(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
