package permissions

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

// ErrInvalidPolicy is wrapped by every policy load or compile error.
var ErrInvalidPolicy = errors.New("invalid permission policy")

// Policy is a declarative set of extra rules layered on top of the defaults.
type Policy struct {
	Rules []PolicyRule `yaml:"rules"`
}

// PolicyRule grants Permission when every condition in When holds.
type PolicyRule struct {
	Permission string     `yaml:"permission"`
	Name       string     `yaml:"name"`
	Priority   int        `yaml:"priority"`
	When       Conditions `yaml:"when"`
}

// Conditions are ANDed. Empty lists and false flags are not checked.
type Conditions struct {
	OrgRoles   []string `yaml:"org_roles"`
	TeamRoles  []string `yaml:"team_roles"`
	TeamMember bool     `yaml:"team_member"`
	Assignee   bool     `yaml:"assignee"`
}

// LoadPolicy decodes a YAML policy. An empty document is an empty policy.
func LoadPolicy(r io.Reader) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if _, err := p.Compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicyFile reads and validates the policy at path.
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// Compile turns the policy into rules keyed by permission. A nil policy compiles to nothing.
func (p *Policy) Compile() (map[string][]Rule, error) {
	compiled := make(map[string][]Rule)
	if p == nil {
		return compiled, nil
	}
	for i, pr := range p.Rules {
		rule, err := pr.compile()
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidPolicy, i, pr.Name, err)
		}
		compiled[pr.Permission] = append(compiled[pr.Permission], rule)
	}
	return compiled, nil
}

func (pr PolicyRule) compile() (Rule, error) {
	if pr.Permission == "" {
		return Rule{}, errors.New("permission is required")
	}

	var preds []Predicate
	if len(pr.When.OrgRoles) > 0 {
		roles := make([]auth.OrgRole, 0, len(pr.When.OrgRoles))
		for _, s := range pr.When.OrgRoles {
			role, err := auth.ParseOrgRole(s)
			if err != nil {
				return Rule{}, err
			}
			roles = append(roles, role)
		}
		preds = append(preds, OrgRoleIn(roles...))
	}
	if len(pr.When.TeamRoles) > 0 {
		roles := make([]auth.TeamRole, 0, len(pr.When.TeamRoles))
		for _, s := range pr.When.TeamRoles {
			role, err := auth.ParseTeamRole(s)
			if err != nil {
				return Rule{}, err
			}
			roles = append(roles, role)
		}
		preds = append(preds, TeamRoleIn(roles...))
	}
	if pr.When.TeamMember {
		preds = append(preds, TeamMember())
	}
	if pr.When.Assignee {
		preds = append(preds, IsAssignee())
	}
	if len(preds) == 0 {
		return Rule{}, errors.New("at least one condition is required")
	}

	name := pr.Name
	if name == "" {
		name = "policy:" + pr.Permission
	}
	return Rule{Name: name, Priority: pr.Priority, Check: All(preds...)}, nil
}
