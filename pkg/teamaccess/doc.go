// Package teamaccess resolves whether a user may access a team that can
// belong to a different organization than the user's own.
//
// # Resolution
//
// Resolver.ResolveTeamAccess tries an ordered ladder of strategies:
//
//	primary         full lookup: user, team, membership, org role in the team's org
//	simple_check    reduced yes/no check, retried with exponential backoff
//	ultra_fallback  membership relation only
//
// A strategy error moves to the next rung. If every rung fails the result is
// the optimistic default (IsMember=true, ReasonErrorAssumedAccess) so a
// backend outage does not lock users out. If the overall budget runs out
// first the result is a denial with ReasonError.
//
// The organization role is always read from the team's organization. A
// member of org A who is an admin of org B can access B's teams:
//
//	res := resolver.ResolveTeamAccess(ctx, "u1", "teamInB")
//	// res.AccessReason == ReasonOrgRoleInTeamsOrg, res.HasCrossOrgAccess == true
//
// # Interactive verification
//
// Verifier wraps any Checker with linear retries and progress updates, and
// reports a *VerificationError that tells a deleted team apart from a
// transient failure.
//
// # Repair
//
// RepairTeamMembership is the explicit self-heal write: it adds the user as a
// team manager and is idempotent.
package teamaccess
