package permissions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

const requestorPolicy = `
rules:
  - permission: equipment.edit
    name: requestors-edit-team-equipment
    priority: 30
    when:
      org_roles: [member]
      team_roles: [requestor, creator]
`

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader(requestorPolicy))
	require.NoError(t, err)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, "equipment.edit", p.Rules[0].Permission)

	compiled, err := p.Compile()
	require.NoError(t, err)
	rule := compiled["equipment.edit"][0]

	requestor := auth.UserContext{
		UserID:          "r1",
		UserRole:        auth.OrgRoleMember,
		TeamMemberships: []auth.TeamMembership{{TeamID: "t1", Role: auth.TeamRoleRequestor}},
	}
	assert.True(t, rule.Check(requestor, &EntityContext{TeamID: "t1"}))
	assert.False(t, rule.Check(requestor, &EntityContext{TeamID: "t2"}))
}

func TestLoadPolicy_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown org role", "rules:\n  - permission: a.b\n    when:\n      org_roles: [emperor]\n"},
		{"unknown team role", "rules:\n  - permission: a.b\n    when:\n      team_roles: [owner]\n"},
		{"missing permission", "rules:\n  - name: x\n    when:\n      team_member: true\n"},
		{"no conditions", "rules:\n  - permission: a.b\n"},
		{"unknown field", "rules:\n  - permission: a.b\n    grant: everyone\n"},
		{"malformed", "rules: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestLoadPolicy_EmptyDocument(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, p.Rules)
}

func TestPolicyWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o600))

	e := newTestEngine(t)
	requestor := auth.UserContext{
		UserID:          "r1",
		UserRole:        auth.OrgRoleMember,
		TeamMemberships: []auth.TeamMembership{{TeamID: "t1", Role: auth.TeamRoleRequestor}},
	}
	ec := &EntityContext{TeamID: "t1"}
	require.False(t, e.HasPermission(PermEquipmentEdit, requestor, ec))

	w, err := NewPolicyWatcher(path, e, quietLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, os.WriteFile(path, []byte(requestorPolicy), 0o600))

	assert.Eventually(t, func() bool {
		return e.HasPermission(PermEquipmentEdit, requestor, ec)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPolicyWatcher_BrokenFileKeepsRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(requestorPolicy), 0o600))

	p, err := LoadPolicyFile(path)
	require.NoError(t, err)
	e := newTestEngine(t)
	require.NoError(t, e.ApplyPolicy(p))

	w, err := NewPolicyWatcher(path, e, quietLogger())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("rules: [\n"), 0o600))
	w.reload(quietLogger().WithField("test", true))

	assert.Len(t, e.Rules(PermEquipmentEdit), 3)
	w.watcher.Close()
}
