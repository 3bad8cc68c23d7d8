package teamaccess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

var errStoreDown = errors.New("connection refused")

// crossOrgStore: u1 belongs to orgA, team t1 belongs to orgB
func crossOrgStore() *fakeStore {
	s := newFakeStore()
	s.users["u1"] = UserProfile{UserID: "u1", OrganizationID: "orgA"}
	s.teams["t1"] = Team{ID: "t1", Name: "Night Shift", OrganizationID: "orgB"}
	s.teams["tA"] = Team{ID: "tA", Name: "Day Shift", OrganizationID: "orgA"}
	s.orgNames["orgB"] = "Beta Logistics"
	return s
}

func newTestResolver(s Store, rec *delayRecorder, opts ...Option) *Resolver {
	if rec == nil {
		rec = &delayRecorder{}
	}
	opts = append([]Option{WithLogger(quietLogger()), WithTimerFactory(rec.factory())}, opts...)
	return NewResolver(s, DefaultConfig(), opts...)
}

func TestResolve_CrossOrgRoleGrantsAccess(t *testing.T) {
	s := crossOrgStore()
	s.orgRoles[key("orgB", "u1")] = auth.OrgRoleAdmin

	res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

	assert.True(t, res.HasAccess)
	assert.False(t, res.IsMember)
	assert.Equal(t, ReasonOrgRoleInTeamsOrg, res.AccessReason)
	assert.True(t, res.HasCrossOrgAccess)
	assert.True(t, res.HasOrgAccess)
	assert.Equal(t, auth.OrgRoleAdmin, res.OrgRole)
	assert.Equal(t, "orgA", res.UserOrgID)
	assert.Equal(t, "orgB", res.TeamOrgID)
	assert.Equal(t, "Beta Logistics", res.OrgName)
	assert.Equal(t, "Night Shift", res.TeamName)
	require.NotNil(t, res.Team)
	assert.Equal(t, "t1", res.Team.ID)
}

func TestResolve_PrimaryOrgRoleDoesNotLeak(t *testing.T) {
	s := crossOrgStore()
	s.orgRoles[key("orgA", "u1")] = auth.OrgRoleOwner
	s.orgRoles[key("orgB", "u1")] = auth.OrgRoleMember

	res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

	assert.False(t, res.HasAccess)
	assert.Equal(t, ReasonNoAccess, res.AccessReason)
	assert.False(t, res.HasCrossOrgAccess)
	assert.Equal(t, auth.OrgRoleMember, res.OrgRole)
}

func TestResolve_SameOrgMemberWithoutAccess(t *testing.T) {
	s := crossOrgStore()
	s.orgRoles[key("orgA", "u1")] = auth.OrgRoleMember

	res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "tA")

	assert.False(t, res.HasAccess)
	assert.Equal(t, ReasonSameOrgNoAccess, res.AccessReason)
	assert.False(t, res.HasCrossOrgAccess)
	assert.Empty(t, res.OrgName, "missing org name is not a failure")
}

func TestResolve_SameOrgAdmin(t *testing.T) {
	s := crossOrgStore()
	s.orgRoles[key("orgA", "u1")] = auth.OrgRoleAdmin

	res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "tA")

	assert.True(t, res.HasAccess)
	assert.Equal(t, ReasonOrgRoleInTeamsOrg, res.AccessReason)
	assert.False(t, res.HasCrossOrgAccess)
}

func TestResolve_MembershipReasonWins(t *testing.T) {
	s := crossOrgStore()
	s.orgRoles[key("orgB", "u1")] = auth.OrgRoleOwner
	s.members[key("t1", "u1")] = &Membership{ID: "tm-1", TeamID: "t1", UserID: "u1", Role: auth.TeamRoleTechnician}

	res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

	assert.True(t, res.HasAccess)
	assert.True(t, res.IsMember)
	assert.Equal(t, ReasonTeamMember, res.AccessReason)
	assert.Equal(t, auth.TeamRoleTechnician, res.Role)
	assert.True(t, res.HasCrossOrgAccess)
}

func TestResolve_NotFoundReasons(t *testing.T) {
	s := crossOrgStore()
	s.appless["ghost"] = true
	r := newTestResolver(s, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		teamID string
		want   AccessReason
	}{
		{"unknown user", "nobody", "t1", ReasonUserNotFound},
		{"empty user", "", "t1", ReasonUserNotFound},
		{"user without organization", "ghost", "t1", ReasonAppUserNotFound},
		{"unknown team", "u1", "deleted", ReasonTeamNotFound},
		{"empty team", "u1", "", ReasonTeamNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.ResolveTeamAccess(ctx, tt.userID, tt.teamID)
			assert.False(t, res.HasAccess)
			assert.Equal(t, tt.want, res.AccessReason)
		})
	}
}

func TestResolve_LadderExhaustedAssumesAccess(t *testing.T) {
	s := crossOrgStore()
	s.lookupErr = errStoreDown
	s.canAccessErr = errStoreDown
	s.existsErr = errStoreDown
	rec := &delayRecorder{}
	metrics := observability.NewMetrics(nil)

	res := newTestResolver(s, rec, WithMetrics(metrics)).ResolveTeamAccess(context.Background(), "u1", "t1")

	assert.True(t, res.IsMember)
	assert.True(t, res.HasAccess)
	assert.Equal(t, ReasonErrorAssumedAccess, res.AccessReason)
	assert.Equal(t, 3, s.canAccessCalls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.recorded())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TeamAccessStrategyTotal.WithLabelValues(StrategySimpleCheck, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TeamAccessResolutionsTotal.WithLabelValues("error_assumed_access", "true")))
}

func TestResolve_SimpleCheck(t *testing.T) {
	t.Run("grants with role", func(t *testing.T) {
		s := crossOrgStore()
		s.lookupErr = errStoreDown
		s.canReach[key("t1", "u1")] = true
		s.members[key("t1", "u1")] = &Membership{ID: "tm-1", Role: auth.TeamRoleManager}

		res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

		assert.True(t, res.HasAccess)
		assert.Equal(t, ReasonFallbackCheck, res.AccessReason)
		assert.Equal(t, auth.TeamRoleManager, res.Role)
	})

	t.Run("role lookup failure is not fatal", func(t *testing.T) {
		s := crossOrgStore()
		s.lookupErr = errStoreDown
		s.membershipErr = errStoreDown
		s.canReach[key("t1", "u1")] = true

		res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

		assert.True(t, res.HasAccess)
		assert.Equal(t, ReasonFallbackCheck, res.AccessReason)
		assert.Empty(t, res.Role)
	})

	t.Run("recovers after a retry", func(t *testing.T) {
		s := &flakyStore{fakeStore: crossOrgStore(), failures: 1}
		s.lookupErr = errStoreDown
		s.canReach[key("t1", "u1")] = true
		rec := &delayRecorder{}

		res := newTestResolver(s, rec).ResolveTeamAccess(context.Background(), "u1", "t1")

		assert.Equal(t, ReasonFallbackCheck, res.AccessReason)
		assert.Equal(t, []time.Duration{100 * time.Millisecond}, rec.recorded())
	})

	t.Run("denies", func(t *testing.T) {
		s := crossOrgStore()
		s.lookupErr = errStoreDown

		res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

		assert.False(t, res.HasAccess)
		assert.False(t, res.IsMember)
		assert.Equal(t, ReasonNoPermission, res.AccessReason)
	})
}

func TestResolve_UltraFallback(t *testing.T) {
	s := crossOrgStore()
	s.lookupErr = errStoreDown
	s.canAccessErr = errStoreDown
	s.members[key("t1", "u1")] = &Membership{ID: "tm-1"}

	res := newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u1", "t1")

	assert.True(t, res.IsMember)
	assert.Equal(t, ReasonUltraFallbackCheck, res.AccessReason)

	res = newTestResolver(s, nil).ResolveTeamAccess(context.Background(), "u2", "t1")
	assert.False(t, res.HasAccess)
	assert.Equal(t, ReasonNoPermission, res.AccessReason)
}

func TestResolve_BudgetExceededDenies(t *testing.T) {
	s := crossOrgStore()
	s.block = true
	r := NewResolver(s, Config{Budget: 60 * time.Millisecond, PrimaryTimeout: 20 * time.Millisecond},
		WithLogger(quietLogger()))

	start := time.Now()
	res := r.ResolveTeamAccess(context.Background(), "u1", "t1")

	assert.False(t, res.HasAccess)
	assert.Equal(t, ReasonError, res.AccessReason)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolve_CallerCancellation(t *testing.T) {
	s := crossOrgStore()
	s.block = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestResolver(s, nil).ResolveTeamAccess(ctx, "u1", "t1")

	assert.Equal(t, ReasonError, res.AccessReason)
}

func TestResolver_LadderOrder(t *testing.T) {
	r := newTestResolver(newFakeStore(), nil)

	var names []string
	for _, s := range r.Ladder() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StrategyPrimary, StrategySimpleCheck, StrategyUltraFallback}, names)
}

func TestResolve_ReasonAlwaysValid(t *testing.T) {
	s := crossOrgStore()
	r := newTestResolver(s, nil)
	for _, u := range []string{"u1", "nobody", ""} {
		for _, team := range []string{"t1", "tA", "missing"} {
			res, err := r.CheckTeamAccess(context.Background(), u, team)
			require.NoError(t, err)
			assert.True(t, res.AccessReason.Valid(), "reason %q", res.AccessReason)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{Budget: 2 * time.Second}.withDefaults()

	assert.Equal(t, 2*time.Second, cfg.Budget)
	assert.Equal(t, 2*time.Second, cfg.PrimaryTimeout, "primary timeout never exceeds the budget")
	assert.Equal(t, 3, cfg.SimpleCheckAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.SimpleCheckInitialDelay)
}

// flakyStore fails UserCanAccessTeam for the first failures calls
type flakyStore struct {
	*fakeStore
	failures int
}

func (f *flakyStore) UserCanAccessTeam(ctx context.Context, userID, teamID string) (bool, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return false, errStoreDown
	}
	f.mu.Unlock()
	return f.fakeStore.UserCanAccessTeam(ctx, userID, teamID)
}
