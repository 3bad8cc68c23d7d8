package permissions

import (
	"slices"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

// Permission keys
const (
	PermOrganizationManage    = "organization.manage"
	PermOrganizationInvite    = "organization.invite"
	PermEquipmentView         = "equipment.view"
	PermEquipmentEdit         = "equipment.edit"
	PermWorkOrderView         = "workorder.view"
	PermWorkOrderEdit         = "workorder.edit"
	PermWorkOrderAssign       = "workorder.assign"
	PermWorkOrderChangeStatus = "workorder.changestatus"
	PermTeamView              = "team.view"
	PermTeamManage            = "team.manage"
)

// Rule priorities used by the default rule-set
const (
	PriorityOrganization = 100
	PriorityTeam         = 50
	PriorityAssignee     = 40
)

// OrgRoleIn matches when the user's organization role is one of roles.
func OrgRoleIn(roles ...auth.OrgRole) Predicate {
	return func(uc auth.UserContext, _ *EntityContext) bool {
		return slices.Contains(roles, uc.UserRole)
	}
}

// TeamRoleIn matches when the user holds one of roles in the entity's team.
func TeamRoleIn(roles ...auth.TeamRole) Predicate {
	return func(uc auth.UserContext, ec *EntityContext) bool {
		if ec == nil {
			return false
		}
		role, ok := uc.TeamRole(ec.TeamID)
		return ok && slices.Contains(roles, role)
	}
}

// TeamMember matches when the user belongs to the entity's team in any role.
func TeamMember() Predicate {
	return func(uc auth.UserContext, ec *EntityContext) bool {
		return ec != nil && uc.IsTeamMember(ec.TeamID)
	}
}

// IsAssignee matches when the entity is assigned to the acting user.
func IsAssignee() Predicate {
	return func(uc auth.UserContext, ec *EntityContext) bool {
		return ec != nil && ec.AssigneeID != "" && ec.AssigneeID == uc.UserID
	}
}

// All matches when every predicate matches. It never matches an empty list.
func All(preds ...Predicate) Predicate {
	return func(uc auth.UserContext, ec *EntityContext) bool {
		if len(preds) == 0 {
			return false
		}
		for _, p := range preds {
			if !p(uc, ec) {
				return false
			}
		}
		return true
	}
}

// DefaultRules returns a fresh copy of the built-in rule-set keyed by permission.
func DefaultRules() map[string][]Rule {
	orgAdmins := Rule{
		Name:     "org-owner-or-admin",
		Priority: PriorityOrganization,
		Check:    OrgRoleIn(auth.OrgRoleOwner, auth.OrgRoleAdmin),
	}
	orgMembers := Rule{
		Name:     "org-any-role",
		Priority: PriorityOrganization,
		Check:    OrgRoleIn(auth.OrgRoleOwner, auth.OrgRoleAdmin, auth.OrgRoleMember),
	}
	teamManager := Rule{
		Name:     "team-manager",
		Priority: PriorityTeam,
		Check:    TeamRoleIn(auth.TeamRoleManager),
	}
	teamMember := Rule{
		Name:     "team-member",
		Priority: PriorityTeam,
		Check:    TeamMember(),
	}
	assignee := Rule{
		Name:     "assignee",
		Priority: PriorityAssignee,
		Check:    IsAssignee(),
	}

	return map[string][]Rule{
		PermOrganizationManage:    {orgAdmins},
		PermOrganizationInvite:    {orgAdmins},
		PermEquipmentView:         {orgMembers, teamMember},
		PermEquipmentEdit:         {orgAdmins, teamManager},
		PermWorkOrderView:         {orgAdmins, teamMember, assignee},
		PermWorkOrderEdit:         {orgAdmins, teamManager},
		PermWorkOrderAssign:       {orgAdmins, teamManager},
		PermWorkOrderChangeStatus: {orgAdmins, teamMember, assignee},
		PermTeamView:              {orgAdmins, teamMember},
		PermTeamManage:            {orgAdmins, teamManager},
	}
}
