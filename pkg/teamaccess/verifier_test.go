package teamaccess

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChecker replays responses in order, repeating the last one
type scriptedChecker struct {
	responses []checkResponse
	calls     int
}

type checkResponse struct {
	result *Result
	err    error
}

func (c *scriptedChecker) CheckTeamAccess(ctx context.Context, userID, teamID string) (*Result, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i].result, c.responses[i].err
}

func newTestVerifier(c Checker, rec *delayRecorder) *Verifier {
	return NewVerifier(c, WithVerifyTimerFactory(rec.factory()), WithVerifyLogger(quietLogger()))
}

func TestVerify_RetriesWithLinearDelay(t *testing.T) {
	granted := &Result{HasAccess: true, IsMember: true, AccessReason: ReasonTeamMember}
	checker := &scriptedChecker{responses: []checkResponse{
		{err: errStoreDown},
		{result: &Result{AccessReason: ReasonError}},
		{result: granted},
	}}
	rec := &delayRecorder{}
	var updates []Update

	res, err := newTestVerifier(checker, rec).Verify(context.Background(), "u1", "t1", func(u Update) {
		updates = append(updates, u)
	})

	require.NoError(t, err)
	assert.Same(t, granted, res)
	assert.Equal(t, 3, checker.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())

	require.Len(t, updates, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateChecking, updates[i].State)
		assert.Equal(t, i+1, updates[i].Attempt)
		assert.True(t, updates[i].Result.IsMember, "checking state stays optimistic")
	}
	assert.Equal(t, StateVerified, updates[3].State)
}

func TestVerify_DenialIsNotRetried(t *testing.T) {
	checker := &scriptedChecker{responses: []checkResponse{
		{result: &Result{AccessReason: ReasonSameOrgNoAccess}},
	}}

	res, err := newTestVerifier(checker, &delayRecorder{}).Verify(context.Background(), "u1", "t1", nil)

	require.NoError(t, err)
	assert.Equal(t, ReasonSameOrgNoAccess, res.AccessReason)
	assert.Equal(t, 1, checker.calls)
}

func TestVerify_FailsAfterThreeAttempts(t *testing.T) {
	checker := &scriptedChecker{responses: []checkResponse{{err: errStoreDown}}}
	var last Update

	res, err := newTestVerifier(checker, &delayRecorder{}).Verify(context.Background(), "u1", "t1", func(u Update) {
		last = u
	})

	require.Error(t, err)
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, verr.TeamDeleted)
	assert.Equal(t, 3, verr.Attempts)
	assert.Contains(t, err.Error(), "could not verify membership")
	assert.ErrorIs(t, err, errStoreDown)

	assert.Equal(t, 3, checker.calls)
	assert.False(t, res.IsMember)
	assert.Equal(t, ReasonError, res.AccessReason)
	assert.Equal(t, StateFailed, last.State)
	assert.False(t, last.Result.IsMember)
}

func TestVerify_DeletedTeam(t *testing.T) {
	checker := &scriptedChecker{responses: []checkResponse{
		{err: fmt.Errorf("GET /teams/t1/access: %w", ErrTeamNotFound)},
	}}

	res, err := newTestVerifier(checker, &delayRecorder{}).Verify(context.Background(), "u1", "t1", nil)

	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.TeamDeleted)
	assert.Equal(t, "team was deleted", err.Error())
	assert.Equal(t, ReasonTeamNotFound, res.AccessReason)
	assert.False(t, res.IsMember)
}

func TestVerify_StopsOnCancellation(t *testing.T) {
	checker := &scriptedChecker{responses: []checkResponse{{err: errStoreDown}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestVerifier(checker, &delayRecorder{}).Verify(ctx, "u1", "t1", nil)

	require.Error(t, err)
	assert.LessOrEqual(t, checker.calls, 1)
}

func TestVerify_WrapsResolver(t *testing.T) {
	s := crossOrgStore()
	s.members[key("t1", "u1")] = &Membership{ID: "tm-1", Role: "manager"}
	resolver := newTestResolver(s, nil)

	res, err := newTestVerifier(resolver, &delayRecorder{}).Verify(context.Background(), "u1", "t1", nil)

	require.NoError(t, err)
	assert.Equal(t, ReasonTeamMember, res.AccessReason)
}
