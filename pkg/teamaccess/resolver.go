package teamaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

// Config bounds a resolution and tunes the simple-check retries.
type Config struct {
	// Budget bounds the whole resolution, ladder included
	Budget time.Duration
	// PrimaryTimeout bounds the primary strategy so a slow store still leaves room for the ladder
	PrimaryTimeout time.Duration
	// SimpleCheckAttempts is the total number of simple-check calls
	SimpleCheckAttempts int
	// SimpleCheckInitialDelay is the first backoff delay; it doubles on each retry
	SimpleCheckInitialDelay time.Duration
}

// DefaultConfig returns the production resolution limits
func DefaultConfig() Config {
	return Config{
		Budget:                  8 * time.Second,
		PrimaryTimeout:          5 * time.Second,
		SimpleCheckAttempts:     3,
		SimpleCheckInitialDelay: 100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Budget <= 0 {
		c.Budget = d.Budget
	}
	if c.PrimaryTimeout <= 0 || c.PrimaryTimeout > c.Budget {
		c.PrimaryTimeout = min(d.PrimaryTimeout, c.Budget)
	}
	if c.SimpleCheckAttempts <= 0 {
		c.SimpleCheckAttempts = d.SimpleCheckAttempts
	}
	if c.SimpleCheckInitialDelay <= 0 {
		c.SimpleCheckInitialDelay = d.SimpleCheckInitialDelay
	}
	return c
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records resolutions, strategy outcomes and repairs.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithTimerFactory overrides the timer used between retries. Each retry loop
// gets its own timer from the factory.
func WithTimerFactory(newTimer func() backoff.Timer) Option {
	return func(r *Resolver) {
		r.newTimer = newTimer
	}
}

// Resolver decides whether a user may access a team, possibly in another
// organization. It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	store    Store
	cfg      Config
	logger   *logrus.Logger
	metrics  *observability.Metrics
	newTimer func() backoff.Timer
	now      func() time.Time

	ladder []Strategy
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logrus.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ladder = r.defaultLadder()
	return r
}

// CheckTeamAccess implements Checker. Resolution never fails; the error is always nil.
func (r *Resolver) CheckTeamAccess(ctx context.Context, userID, teamID string) (*Result, error) {
	return r.ResolveTeamAccess(ctx, userID, teamID), nil
}

// ResolveTeamAccess runs the strategy ladder under the configured budget.
// When every strategy fails the optimistic default is returned; when the
// budget runs out first the result is a denial with ReasonError.
func (r *Resolver) ResolveTeamAccess(ctx context.Context, userID, teamID string) *Result {
	start := r.now()
	ctx, span := observability.Tracer().Start(ctx, "teamaccess.Resolve", trace.WithAttributes(
		attribute.String("fleetdesk.user_id", userID),
		attribute.String("fleetdesk.team_id", teamID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	log := observability.WithTraceContext(ctx, r.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"team_id": teamID,
	}))

	result := r.runLadder(ctx, log, userID, teamID)

	span.SetAttributes(
		attribute.String("fleetdesk.access_reason", string(result.AccessReason)),
		attribute.Bool("fleetdesk.has_access", result.HasAccess),
	)
	r.metrics.RecordTeamAccess(string(result.AccessReason), result.HasAccess, r.now().Sub(start))
	log.WithFields(logrus.Fields{
		"access_reason": result.AccessReason,
		"has_access":    result.HasAccess,
	}).Debug("Team access resolved")
	return result
}

func (r *Resolver) runLadder(ctx context.Context, log *logrus.Entry, userID, teamID string) *Result {
	for _, s := range r.ladder {
		if ctx.Err() != nil {
			break
		}

		sctx, span := observability.Tracer().Start(ctx, "teamaccess.strategy."+s.Name)
		res, err := s.Resolve(sctx, userID, teamID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			r.metrics.RecordStrategy(s.Name, "error")
			log.WithError(err).WithField("strategy", s.Name).Warn("Team access strategy failed, trying next")
			continue
		}
		span.End()
		r.metrics.RecordStrategy(s.Name, "resolved")
		return res
	}

	if ctx.Err() != nil {
		log.WithError(ctx.Err()).Error("Team access resolution exceeded its budget")
		return &Result{AccessReason: ReasonError}
	}

	log.Error("All team access strategies failed, assuming access")
	return &Result{HasAccess: true, IsMember: true, AccessReason: ReasonErrorAssumedAccess}
}

// resolvePrimary is the full lookup. Not-found outcomes are results; only
// unexpected store failures are returned as errors.
func (r *Resolver) resolvePrimary(ctx context.Context, userID, teamID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PrimaryTimeout)
	defer cancel()

	if userID == "" {
		return &Result{AccessReason: ReasonUserNotFound}, nil
	}
	profile, err := r.store.LookupUser(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return &Result{AccessReason: ReasonUserNotFound}, nil
	case errors.Is(err, ErrAppUserNotFound):
		return &Result{AccessReason: ReasonAppUserNotFound}, nil
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if teamID == "" {
		return &Result{AccessReason: ReasonTeamNotFound, UserOrgID: profile.OrganizationID}, nil
	}
	team, err := r.store.GetTeam(ctx, teamID)
	switch {
	case errors.Is(err, ErrTeamNotFound):
		return &Result{AccessReason: ReasonTeamNotFound, UserOrgID: profile.OrganizationID}, nil
	case err != nil:
		return nil, fmt.Errorf("get team: %w", err)
	}

	// The org role must come from the team's organization, not the user's primary one.
	var (
		membership *Membership
		orgRole    auth.OrgRole
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := r.store.GetTeamMembership(gctx, team.ID, userID)
		if err != nil {
			return fmt.Errorf("get team membership: %w", err)
		}
		membership = m
		return nil
	})
	g.Go(func() error {
		role, err := r.store.GetOrgRole(gctx, team.OrganizationID, userID)
		if err != nil {
			return fmt.Errorf("get org role: %w", err)
		}
		orgRole = role
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	isMember := membership != nil
	hasOrgRoleAccess := orgRole == auth.OrgRoleOwner || orgRole == auth.OrgRoleAdmin
	hasAccess := isMember || hasOrgRoleAccess
	crossOrg := profile.OrganizationID != team.OrganizationID

	result := &Result{
		HasAccess:         hasAccess,
		IsMember:          isMember,
		AccessReason:      decideReason(isMember, hasOrgRoleAccess, crossOrg),
		OrgRole:           orgRole,
		HasCrossOrgAccess: crossOrg && hasAccess,
		HasOrgAccess:      hasOrgRoleAccess,
		UserOrgID:         profile.OrganizationID,
		TeamOrgID:         team.OrganizationID,
		TeamName:          team.Name,
		Team:              &team,
	}
	if isMember {
		result.Role = membership.Role
	}

	if name, err := r.store.GetOrganizationName(ctx, team.OrganizationID); err == nil {
		result.OrgName = name
	} else {
		r.logger.WithError(err).WithField("organization_id", team.OrganizationID).Debug("Organization name unavailable")
	}

	return result, nil
}

// decideReason applies the reason priority: membership, then an org role
// held in the team's organization, then the same-org and cross-org denials.
func decideReason(isMember, hasOrgRoleAccess, crossOrg bool) AccessReason {
	switch {
	case isMember:
		return ReasonTeamMember
	case hasOrgRoleAccess:
		return ReasonOrgRoleInTeamsOrg
	case !crossOrg:
		return ReasonSameOrgNoAccess
	default:
		return ReasonNoAccess
	}
}
