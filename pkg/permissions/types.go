package permissions

import (
	"encoding/json"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
)

// EntityContext describes the object a permission check is scoped to.
// Rules read only the named fields; Attributes is carried into the cache key
// but otherwise ignored by the default rules.
type EntityContext struct {
	TeamID     string         `json:"team_id,omitempty" yaml:"team_id"`
	AssigneeID string         `json:"assignee_id,omitempty" yaml:"assignee_id"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes"`
}

// Predicate decides whether a rule matches. It must be side-effect free.
// ec may be nil.
type Predicate func(uc auth.UserContext, ec *EntityContext) bool

// Rule is a named, prioritized predicate. Higher priorities are evaluated first.
type Rule struct {
	Name     string
	Priority int
	Check    Predicate
}

// cacheKey builds the decision cache key as a JSON array, so ids containing
// separators cannot collide. encoding/json sorts map keys, so equal attribute
// maps always serialize identically.
func cacheKey(permission string, uc auth.UserContext, ec *EntityContext) string {
	b, err := json.Marshal([]any{permission, uc.UserID, uc.OrganizationID, ec})
	if err != nil {
		// unserializable attributes: key on the fields rules actually read
		b, _ = json.Marshal([]any{permission, uc.UserID, uc.OrganizationID, ec.TeamID, ec.AssigneeID})
	}
	return string(b)
}
