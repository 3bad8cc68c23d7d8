package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string, out io.Writer) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "fleetctl",
		Description: "fleetctl - fleetdesk authorization CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("fleetctl", flag.ContinueOnError),
	}

	root.Subcommands["access"] = newAccessCommand()
	root.Subcommands["check"] = newCheckCommand()
	root.Subcommands["repair"] = newRepairCommand()
	root.Subcommands["policy-validate"] = newPolicyValidateCommand()

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage(out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:], out)
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-16s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// serverFlags registers the flags every API command shares
func serverFlags(fs *flag.FlagSet) {
	fs.String("server", getEnv("FLEETDESK_SERVER", "http://localhost:8080"), "fleetdesk server URL")
	fs.String("token", os.Getenv("FLEETDESK_TOKEN"), "session token (defaults to $FLEETDESK_TOKEN)")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
