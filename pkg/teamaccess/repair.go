package teamaccess

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

// RepairResult is the outcome of a membership repair. Failures are reported
// in Error rather than as a Go error so callers can show them verbatim.
type RepairResult struct {
	Success      bool   `json:"success"`
	TeamMemberID string `json:"team_member_id,omitempty"`
	Created      bool   `json:"created"`
	Error        string `json:"error,omitempty"`
}

// RepairTeamMembership adds userID to teamID as a manager. It is idempotent:
// an existing membership is a success carrying the existing record id. It is
// only triggered by explicit user action, never by resolution.
func (r *Resolver) RepairTeamMembership(ctx context.Context, userID, teamID string) RepairResult {
	log := r.logger.WithFields(logrus.Fields{"user_id": userID, "team_id": teamID})
	fail := func(msg string, err error) RepairResult {
		entry := log
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Team membership repair failed: " + msg)
		r.metrics.RecordRepair("failed")
		return RepairResult{Error: msg}
	}

	if userID == "" || teamID == "" {
		return fail("user id and team id are required", nil)
	}

	// a user without a primary organization can still be repaired into a team
	if _, err := r.store.LookupUser(ctx, userID); err != nil && !errors.Is(err, ErrAppUserNotFound) {
		if errors.Is(err, ErrUserNotFound) {
			return fail("user not found", nil)
		}
		return fail("failed to verify user", err)
	}

	team, err := r.store.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			return fail("team not found", nil)
		}
		return fail("failed to load team", err)
	}

	id, created, err := r.store.AddTeamMember(ctx, team.ID, userID, auth.TeamRoleManager)
	if err != nil {
		return fail("failed to add team member", err)
	}

	outcome := "existing"
	if created {
		outcome = "created"
	}
	r.metrics.RecordRepair(outcome)
	log.WithFields(logrus.Fields{"team_member_id": id, "created": created}).Info("Team membership repaired")

	return RepairResult{Success: true, TeamMemberID: id, Created: created}
}
