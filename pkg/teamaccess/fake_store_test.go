package teamaccess

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

// fakeStore is an in-memory Store. Error fields force the matching method to fail.
type fakeStore struct {
	mu sync.Mutex

	users    map[string]UserProfile
	appless  map[string]bool
	teams    map[string]Team
	members  map[string]*Membership
	orgRoles map[string]auth.OrgRole
	orgNames map[string]string
	canReach map[string]bool

	lookupErr     error
	membershipErr error
	canAccessErr  error
	existsErr     error
	addErr        error
	block         bool

	canAccessCalls int
	nextID         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]UserProfile{},
		appless:  map[string]bool{},
		teams:    map[string]Team{},
		members:  map[string]*Membership{},
		orgRoles: map[string]auth.OrgRole{},
		orgNames: map[string]string{},
		canReach: map[string]bool{},
	}
}

func key(a, b string) string { return a + "|" + b }

func (s *fakeStore) wait(ctx context.Context) error {
	if !s.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeStore) LookupUser(ctx context.Context, userID string) (UserProfile, error) {
	if err := s.wait(ctx); err != nil {
		return UserProfile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return UserProfile{}, s.lookupErr
	}
	if s.appless[userID] {
		return UserProfile{}, ErrAppUserNotFound
	}
	p, ok := s.users[userID]
	if !ok {
		return UserProfile{}, ErrUserNotFound
	}
	return p, nil
}

func (s *fakeStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return Team{}, fmt.Errorf("team %s: %w", teamID, ErrTeamNotFound)
	}
	return t, nil
}

func (s *fakeStore) GetTeamMembership(ctx context.Context, teamID, userID string) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.membershipErr != nil {
		return nil, s.membershipErr
	}
	return s.members[key(teamID, userID)], nil
}

func (s *fakeStore) GetOrgRole(ctx context.Context, orgID, userID string) (auth.OrgRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orgRoles[key(orgID, userID)], nil
}

func (s *fakeStore) GetOrganizationName(ctx context.Context, orgID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.orgNames[orgID]
	if !ok {
		return "", fmt.Errorf("organization %s has no name", orgID)
	}
	return name, nil
}

func (s *fakeStore) UserCanAccessTeam(ctx context.Context, userID, teamID string) (bool, error) {
	s.mu.Lock()
	s.canAccessCalls++
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canAccessErr != nil {
		return false, s.canAccessErr
	}
	return s.canReach[key(teamID, userID)], nil
}

func (s *fakeStore) TeamMemberExists(ctx context.Context, teamID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.members[key(teamID, userID)]
	return ok, nil
}

func (s *fakeStore) AddTeamMember(ctx context.Context, teamID, userID string, role auth.TeamRole) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return "", false, s.addErr
	}
	if m, ok := s.members[key(teamID, userID)]; ok {
		return m.ID, false, nil
	}
	s.nextID++
	m := &Membership{ID: fmt.Sprintf("tm-%d", s.nextID), TeamID: teamID, UserID: userID, Role: role}
	s.members[key(teamID, userID)] = m
	return m.ID, true, nil
}

func (s *fakeStore) memberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// instantTimer fires immediately and records the requested delays
type instantTimer struct {
	rec *delayRecorder
	c   chan time.Time
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) factory() func() backoff.Timer {
	return func() backoff.Timer { return &instantTimer{rec: r} }
}

func (r *delayRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func (t *instantTimer) Start(d time.Duration) {
	t.rec.mu.Lock()
	t.rec.delays = append(t.rec.delays, d)
	t.rec.mu.Unlock()
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}
