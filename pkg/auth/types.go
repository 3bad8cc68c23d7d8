package auth

import "time"

// TeamMembership is one team the user belongs to, with the role held there.
type TeamMembership struct {
	TeamID string   `json:"team_id"`
	Role   TeamRole `json:"role"`
}

// UserContext is the acting principal for a single authorization decision.
// It is built per request from session data and must not be mutated afterwards.
type UserContext struct {
	UserID          string           `json:"user_id"`
	OrganizationID  string           `json:"organization_id"`
	UserRole        OrgRole          `json:"user_role"`
	TeamMemberships []TeamMembership `json:"team_memberships,omitempty"`
}

// TeamRole returns the role held in teamID. When the same team appears more
// than once the most privileged role wins.
func (uc UserContext) TeamRole(teamID string) (TeamRole, bool) {
	if teamID == "" {
		return "", false
	}
	var roles []TeamRole
	for _, m := range uc.TeamMemberships {
		if m.TeamID == teamID {
			roles = append(roles, m.Role)
		}
	}
	if len(roles) == 0 {
		return "", false
	}
	return HighestTeamRole(roles...), true
}

// IsTeamMember reports whether the user belongs to teamID in any role.
func (uc UserContext) IsTeamMember(teamID string) bool {
	_, ok := uc.TeamRole(teamID)
	return ok
}

// APIToken represents an API token
type APIToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *APIToken) Active(now time.Time) bool {
	if t == nil || t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// AuthContext holds authenticated user information
type AuthContext struct {
	User  UserContext
	Token *APIToken
}
