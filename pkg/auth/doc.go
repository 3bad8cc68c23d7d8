// Package auth defines the principal model used by fleetdesk authorization.
//
// # Roles
//
// Two role vocabularies exist, one per scope, each with a total order:
//
//	Organization: member < admin < owner
//	Team:         viewer < requestor < technician < manager
//
// Stored values are parsed with ParseOrgRole and ParseTeamRole. Two legacy
// spellings are folded into the current taxonomy: the organization-level
// "manager" parses as admin, and the team-level "creator" parses as requestor.
//
// # User context
//
// UserContext is the acting principal for one decision: the user id, the
// primary organization, the role held there and the team memberships.
//
//	uc := auth.UserContext{
//		UserID:         "u1",
//		OrganizationID: "orgA",
//		UserRole:       auth.OrgRoleMember,
//		TeamMemberships: []auth.TeamMembership{
//			{TeamID: "t1", Role: auth.TeamRoleManager},
//		},
//	}
//	role, ok := uc.TeamRole("t1") // manager, true
//
// # Session tokens
//
// Tokens have the form fdk_<base64url(32 random bytes)> and are stored only as
// SHA256 hashes. ParseBearer validates an Authorization header value and
// HashToken produces the lookup key.
package auth
