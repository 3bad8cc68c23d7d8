package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/client"
	"github.com/fleetdesk/fleetdesk/pkg/permissions"
	"github.com/fleetdesk/fleetdesk/pkg/teamaccess"
)

func newAccessCommand() *Command {
	cmd := &Command{
		Name:        "access",
		Description: "Verify your access to a team, retrying transient failures",
		Flags:       flag.NewFlagSet("access", flag.ContinueOnError),
	}
	serverFlags(cmd.Flags)
	cmd.Flags.String("team", "", "Team ID")
	retryStep := cmd.Flags.Duration("retry-step", teamaccess.DefaultVerifyStep, "Delay step between attempts (attempt n waits n*step)")
	cmd.Run = func(ctx context.Context, args []string, out io.Writer) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		c, err := newClient(cmd.Flags)
		if err != nil {
			return err
		}
		teamID := cmd.Flags.Lookup("team").Value.String()
		if teamID == "" {
			return fmt.Errorf("team is required")
		}

		logger := logrus.New()
		logger.SetOutput(io.Discard)
		v := teamaccess.NewVerifier(c,
			teamaccess.WithVerifyStep(*retryStep),
			teamaccess.WithVerifyLogger(logger),
		)

		result, err := v.Verify(ctx, "", teamID, func(u teamaccess.Update) {
			switch u.State {
			case teamaccess.StateChecking:
				fmt.Fprintf(out, "checking membership (attempt %d)...\n", u.Attempt)
			case teamaccess.StateFailed:
				fmt.Fprintf(out, "verification failed: %v\n", u.Err)
			}
		})
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	}
	return cmd
}

func newCheckCommand() *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Check one or more permissions for your session",
		Flags:       flag.NewFlagSet("check", flag.ContinueOnError),
	}
	serverFlags(cmd.Flags)
	cmd.Flags.String("team", "", "Team the entity belongs to")
	cmd.Flags.String("assignee", "", "User the entity is assigned to")
	cmd.Run = func(ctx context.Context, args []string, out io.Writer) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		c, err := newClient(cmd.Flags)
		if err != nil {
			return err
		}
		perms := cmd.Flags.Args()
		if len(perms) == 0 {
			return fmt.Errorf("at least one permission is required")
		}

		var ec *permissions.EntityContext
		team := cmd.Flags.Lookup("team").Value.String()
		assignee := cmd.Flags.Lookup("assignee").Value.String()
		if team != "" || assignee != "" {
			ec = &permissions.EntityContext{TeamID: team, AssigneeID: assignee}
		}

		results, err := c.BatchCheck(ctx, perms, ec)
		if err != nil {
			return err
		}
		sort.Strings(perms)
		for _, p := range perms {
			verdict := "deny"
			if results[p] {
				verdict = "allow"
			}
			fmt.Fprintf(out, "%-28s %s\n", p, verdict)
		}
		return nil
	}
	return cmd
}

func newRepairCommand() *Command {
	cmd := &Command{
		Name:        "repair",
		Description: "Add yourself to a team as manager",
		Flags:       flag.NewFlagSet("repair", flag.ContinueOnError),
	}
	serverFlags(cmd.Flags)
	cmd.Flags.String("team", "", "Team ID")
	cmd.Run = func(ctx context.Context, args []string, out io.Writer) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		c, err := newClient(cmd.Flags)
		if err != nil {
			return err
		}
		teamID := cmd.Flags.Lookup("team").Value.String()
		if teamID == "" {
			return fmt.Errorf("team is required")
		}

		result, err := c.RepairTeamMembership(ctx, teamID)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("repair failed: %s", result.Error)
		}
		return writeJSON(out, result)
	}
	return cmd
}

func newPolicyValidateCommand() *Command {
	cmd := &Command{
		Name:        "policy-validate",
		Description: "Validate a permission policy file",
		Flags:       flag.NewFlagSet("policy-validate", flag.ContinueOnError),
	}
	cmd.Flags.String("file", "", "Policy file path")
	cmd.Run = func(_ context.Context, args []string, out io.Writer) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		path := cmd.Flags.Lookup("file").Value.String()
		if path == "" {
			return fmt.Errorf("file is required")
		}

		policy, err := permissions.LoadPolicyFile(path)
		if err != nil {
			return err
		}
		// the effective rule-set: defaults plus the policy, as the server applies it
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		engine, err := permissions.NewEngine(permissions.WithLogger(quiet))
		if err != nil {
			return err
		}
		if err := engine.ApplyPolicy(policy); err != nil {
			return err
		}

		for _, p := range engine.Permissions() {
			fmt.Fprintf(out, "%-28s %d rule(s)\n", p, len(engine.Rules(p)))
		}
		fmt.Fprintf(out, "policy OK\n")
		return nil
	}
	return cmd
}

func newClient(fs *flag.FlagSet) (*client.Client, error) {
	token := fs.Lookup("token").Value.String()
	if token == "" {
		return nil, fmt.Errorf("token is required (set --token or FLEETDESK_TOKEN)")
	}
	return client.New(fs.Lookup("server").Value.String(), token), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
