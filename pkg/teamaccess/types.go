package teamaccess

import (
	"context"
	"errors"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

// AccessReason explains a team access decision. Callers branch on it to pick
// user-facing copy, so it is never empty.
type AccessReason string

const (
	ReasonUserNotFound       AccessReason = "user_not_found"
	ReasonTeamNotFound       AccessReason = "team_not_found"
	ReasonAppUserNotFound    AccessReason = "app_user_not_found"
	ReasonTeamMember         AccessReason = "team_member"
	ReasonOrgRoleInTeamsOrg  AccessReason = "org_role_in_teams_org"
	ReasonSameOrgNoAccess    AccessReason = "same_org_no_access"
	ReasonNoAccess           AccessReason = "no_access"
	ReasonNoPermission       AccessReason = "no_permission"
	ReasonFallbackCheck      AccessReason = "fallback_check"
	ReasonUltraFallbackCheck AccessReason = "ultra_fallback_check"
	ReasonErrorAssumedAccess AccessReason = "error_assumed_access"
	ReasonError              AccessReason = "error"
)

// Valid reports whether r is one of the known reasons.
func (r AccessReason) Valid() bool {
	switch r {
	case ReasonUserNotFound, ReasonTeamNotFound, ReasonAppUserNotFound,
		ReasonTeamMember, ReasonOrgRoleInTeamsOrg, ReasonSameOrgNoAccess,
		ReasonNoAccess, ReasonNoPermission, ReasonFallbackCheck,
		ReasonUltraFallbackCheck, ReasonErrorAssumedAccess, ReasonError:
		return true
	}
	return false
}

var (
	// ErrUserNotFound means no user record exists for the id
	ErrUserNotFound = errors.New("user not found")
	// ErrAppUserNotFound means the user exists but has no primary organization membership
	ErrAppUserNotFound = errors.New("application user not found")
	// ErrTeamNotFound means the team does not exist or was soft-deleted
	ErrTeamNotFound = errors.New("team not found")
)

// Team is a live (not soft-deleted) team
type Team struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id"`
}

// UserProfile is the user's primary organization membership
type UserProfile struct {
	UserID         string
	OrganizationID string
}

// Membership is a direct team membership record
type Membership struct {
	ID     string
	TeamID string
	UserID string
	Role   auth.TeamRole
}

// Result is the outcome of a team access resolution.
// HasCrossOrgAccess is only set when access is granted to a team outside the user's organization.
type Result struct {
	HasAccess         bool          `json:"has_access"`
	IsMember          bool          `json:"is_member"`
	AccessReason      AccessReason  `json:"access_reason"`
	Role              auth.TeamRole `json:"role,omitempty"`
	OrgRole           auth.OrgRole  `json:"org_role,omitempty"`
	HasCrossOrgAccess bool          `json:"has_cross_org_access"`
	HasOrgAccess      bool          `json:"has_org_access"`
	UserOrgID         string        `json:"user_org_id,omitempty"`
	TeamOrgID         string        `json:"team_org_id,omitempty"`
	OrgName           string        `json:"org_name,omitempty"`
	TeamName          string        `json:"team_name,omitempty"`
	Team              *Team         `json:"team,omitempty"`
}

// Store is the data access the resolver needs.
type Store interface {
	// LookupUser returns ErrUserNotFound or ErrAppUserNotFound when the user cannot be resolved
	LookupUser(ctx context.Context, userID string) (UserProfile, error)
	// GetTeam excludes soft-deleted teams and returns ErrTeamNotFound
	GetTeam(ctx context.Context, teamID string) (Team, error)
	// GetTeamMembership returns nil when the user is not a direct member
	GetTeamMembership(ctx context.Context, teamID, userID string) (*Membership, error)
	// GetOrgRole returns "" when the user holds no role in orgID
	GetOrgRole(ctx context.Context, orgID, userID string) (auth.OrgRole, error)
	GetOrganizationName(ctx context.Context, orgID string) (string, error)
	// UserCanAccessTeam is a reduced-data check used when the full lookup fails
	UserCanAccessTeam(ctx context.Context, userID, teamID string) (bool, error)
	// TeamMemberExists checks only the membership relation
	TeamMemberExists(ctx context.Context, teamID, userID string) (bool, error)
	// AddTeamMember inserts the membership unless it exists and returns the record id
	AddTeamMember(ctx context.Context, teamID, userID string, role auth.TeamRole) (id string, created bool, err error)
}

// Checker resolves team access. Implemented by Resolver and by the HTTP client.
type Checker interface {
	CheckTeamAccess(ctx context.Context, userID, teamID string) (*Result, error)
}
