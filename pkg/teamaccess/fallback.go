package teamaccess

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Strategy names, in ladder order
const (
	StrategyPrimary       = "primary"
	StrategySimpleCheck   = "simple_check"
	StrategyUltraFallback = "ultra_fallback"
)

// Strategy is one rung of the resolution ladder. An error means "try the next one".
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context, userID, teamID string) (*Result, error)
}

// Ladder returns the strategies in the order they are tried.
func (r *Resolver) Ladder() []Strategy {
	return append([]Strategy(nil), r.ladder...)
}

func (r *Resolver) defaultLadder() []Strategy {
	return []Strategy{
		{Name: StrategyPrimary, Resolve: r.resolvePrimary},
		{Name: StrategySimpleCheck, Resolve: r.simpleCheck},
		{Name: StrategyUltraFallback, Resolve: r.ultraFallback},
	}
}

// simpleCheck asks the store the reduced yes/no question, retrying with
// exponential backoff. The role lookup afterwards is best-effort.
func (r *Resolver) simpleCheck(ctx context.Context, userID, teamID string) (*Result, error) {
	var allowed bool
	op := func() error {
		ok, err := r.store.UserCanAccessTeam(ctx, userID, teamID)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		allowed = ok
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.SimpleCheckInitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.SimpleCheckAttempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  userID,
			"team_id":  teamID,
			"retry_in": next,
		}).Debug("Simple access check failed, retrying")
	}

	if err := backoff.RetryNotifyWithTimer(op, policy, notify, r.timer()); err != nil {
		return nil, fmt.Errorf("simple check: %w", err)
	}

	if !allowed {
		return &Result{AccessReason: ReasonNoPermission}, nil
	}

	result := &Result{HasAccess: true, IsMember: true, AccessReason: ReasonFallbackCheck}
	m, err := r.store.GetTeamMembership(ctx, teamID, userID)
	switch {
	case err != nil:
		r.logger.WithError(err).WithField("team_id", teamID).Debug("Role lookup failed after simple check")
	case m != nil:
		result.Role = m.Role
	}
	return result, nil
}

// ultraFallback consults only the membership relation.
func (r *Resolver) ultraFallback(ctx context.Context, userID, teamID string) (*Result, error) {
	exists, err := r.store.TeamMemberExists(ctx, teamID, userID)
	if err != nil {
		return nil, fmt.Errorf("ultra fallback: %w", err)
	}
	if !exists {
		return &Result{AccessReason: ReasonNoPermission}, nil
	}
	return &Result{HasAccess: true, IsMember: true, AccessReason: ReasonUltraFallbackCheck}, nil
}

// timer returns nil to let backoff use a real timer
func (r *Resolver) timer() backoff.Timer {
	if r.newTimer == nil {
		return nil
	}
	return r.newTimer()
}
