package auth

import "testing"

func TestParseOrgRole(t *testing.T) {
	tests := []struct {
		in      string
		want    OrgRole
		wantErr bool
	}{
		{in: "owner", want: OrgRoleOwner},
		{in: "Admin", want: OrgRoleAdmin},
		{in: "manager", want: OrgRoleAdmin},
		{in: " member ", want: OrgRoleMember},
		{in: "viewer", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrgRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOrgRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOrgRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTeamRole(t *testing.T) {
	tests := []struct {
		in      string
		want    TeamRole
		wantErr bool
	}{
		{in: "manager", want: TeamRoleManager},
		{in: "technician", want: TeamRoleTechnician},
		{in: "requestor", want: TeamRoleRequestor},
		{in: "creator", want: TeamRoleRequestor},
		{in: "VIEWER", want: TeamRoleViewer},
		{in: "owner", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTeamRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTeamRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTeamRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOrgRole_AtLeast(t *testing.T) {
	if !OrgRoleOwner.AtLeast(OrgRoleAdmin) {
		t.Error("owner should be at least admin")
	}
	if !OrgRoleAdmin.AtLeast(OrgRoleAdmin) {
		t.Error("admin should be at least admin")
	}
	if OrgRoleMember.AtLeast(OrgRoleAdmin) {
		t.Error("member should not be at least admin")
	}
	if OrgRole("ghost").AtLeast(OrgRoleMember) {
		t.Error("unknown role should never qualify")
	}
}

func TestTeamRoleOrdering(t *testing.T) {
	ordered := []TeamRole{TeamRoleViewer, TeamRoleRequestor, TeamRoleTechnician, TeamRoleManager}
	for i := 1; i < len(ordered); i++ {
		if CompareTeamRoles(ordered[i], ordered[i-1]) != 1 {
			t.Errorf("%s should outrank %s", ordered[i], ordered[i-1])
		}
		if CompareTeamRoles(ordered[i-1], ordered[i]) != -1 {
			t.Errorf("%s should rank below %s", ordered[i-1], ordered[i])
		}
	}
	if CompareTeamRoles(TeamRoleManager, TeamRoleManager) != 0 {
		t.Error("equal roles should compare as 0")
	}
	if CompareOrgRoles(OrgRoleOwner, OrgRoleMember) != 1 {
		t.Error("owner should outrank member")
	}
}

func TestHighestTeamRole(t *testing.T) {
	if got := HighestTeamRole(TeamRoleViewer, TeamRoleManager, TeamRoleTechnician); got != TeamRoleManager {
		t.Errorf("HighestTeamRole() = %q, want manager", got)
	}
	if got := HighestTeamRole(TeamRole("bogus"), TeamRoleRequestor); got != TeamRoleRequestor {
		t.Errorf("HighestTeamRole() = %q, want requestor", got)
	}
	if got := HighestTeamRole(); got != "" {
		t.Errorf("HighestTeamRole() = %q, want empty", got)
	}
}

func TestUserContext_TeamRole(t *testing.T) {
	uc := UserContext{
		UserID:         "u1",
		OrganizationID: "orgA",
		UserRole:       OrgRoleMember,
		TeamMemberships: []TeamMembership{
			{TeamID: "t1", Role: TeamRoleTechnician},
			{TeamID: "t1", Role: TeamRoleManager},
			{TeamID: "t2", Role: TeamRoleViewer},
		},
	}

	role, ok := uc.TeamRole("t1")
	if !ok || role != TeamRoleManager {
		t.Errorf("TeamRole(t1) = %q, %v; want manager, true", role, ok)
	}
	if !uc.IsTeamMember("t2") {
		t.Error("expected membership in t2")
	}
	if uc.IsTeamMember("t3") {
		t.Error("unexpected membership in t3")
	}
	if uc.IsTeamMember("") {
		t.Error("empty team id should never match")
	}
}
