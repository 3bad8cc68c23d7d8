package permissions

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

// Engine evaluates permission keys against prioritized rules and memoizes
// the decisions. It is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	rules map[string][]Rule

	cache   *decisionCache
	logger  *logrus.Logger
	metrics *observability.Metrics

	withDefaults bool
}

type engineOptions struct {
	ttl          time.Duration
	size         int
	now          func() time.Time
	logger       *logrus.Logger
	metrics      *observability.Metrics
	withDefaults bool
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithCacheTTL sets how long decisions stay fresh. Zero disables reuse.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *engineOptions) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithCacheSize bounds the number of cached decisions.
func WithCacheSize(size int) Option {
	return func(o *engineOptions) {
		o.size = size
	}
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for rule failures.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMetrics records decisions and cache lookups.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// WithoutDefaultRules starts the engine with an empty rule-set.
func WithoutDefaultRules() Option {
	return func(o *engineOptions) {
		o.withDefaults = false
	}
}

// NewEngine creates an engine with the default rule-set registered.
func NewEngine(opts ...Option) (*Engine, error) {
	o := engineOptions{
		ttl:          DefaultCacheTTL,
		size:         DefaultCacheSize,
		now:          time.Now,
		withDefaults: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}

	cache, err := newDecisionCache(o.size, o.ttl, o.now)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rules:        make(map[string][]Rule),
		cache:        cache,
		logger:       o.logger,
		metrics:      o.metrics,
		withDefaults: o.withDefaults,
	}
	if o.withDefaults {
		e.rules = DefaultRules()
		for permission := range e.rules {
			sortRules(e.rules[permission])
		}
	}
	return e, nil
}

// AddRule registers a rule for permission and re-sorts that key's rules.
// Rules of equal priority keep registration order.
func (e *Engine) AddRule(permission string, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// copy so evaluations holding the previous slice never observe the re-sort
	rules := make([]Rule, 0, len(e.rules[permission])+1)
	rules = append(rules, e.rules[permission]...)
	rules = append(rules, rule)
	sortRules(rules)
	e.rules[permission] = rules
}

// Rules returns a copy of the rules registered for permission in evaluation order.
func (e *Engine) Rules(permission string) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules[permission]...)
}

// Permissions returns every permission key that has at least one rule.
func (e *Engine) Permissions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]string, 0, len(e.rules))
	for k, rules := range e.rules {
		if len(rules) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// HasPermission reports whether uc holds permission, optionally scoped to ec.
// Unknown or empty permission keys are denied.
func (e *Engine) HasPermission(permission string, uc auth.UserContext, ec *EntityContext) bool {
	if permission == "" {
		return false
	}

	key := cacheKey(permission, uc, ec)
	if allowed, ok := e.cache.get(key); ok {
		e.metrics.RecordCacheLookup(true)
		return allowed
	}
	e.metrics.RecordCacheLookup(false)

	gen := e.cache.generation()
	allowed := e.evaluate(permission, uc, ec)
	e.cache.set(key, allowed, gen)
	e.metrics.RecordPermissionCheck(permission, allowed)
	return allowed
}

// BatchCheck evaluates every permission independently.
func (e *Engine) BatchCheck(permissions []string, uc auth.UserContext, ec *EntityContext) map[string]bool {
	results := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		results[p] = e.HasPermission(p, uc, ec)
	}
	return results
}

// ClearCache drops every cached decision.
func (e *Engine) ClearCache() {
	e.cache.clear()
	e.metrics.SetCacheEntries(0)
}

// SweepCache evicts expired decisions and returns how many were removed.
func (e *Engine) SweepCache() int {
	removed := e.cache.sweep()
	e.metrics.SetCacheEntries(e.cache.len())
	return removed
}

// ApplyPolicy replaces the rule-set with the defaults plus the policy's rules
// and clears the cache. On error the current rule-set is left untouched.
func (e *Engine) ApplyPolicy(p *Policy) error {
	compiled, err := p.Compile()
	if err != nil {
		return err
	}

	next := make(map[string][]Rule)
	if e.withDefaults {
		next = DefaultRules()
	}
	for permission, rules := range compiled {
		next[permission] = append(next[permission], rules...)
	}
	for permission := range next {
		sortRules(next[permission])
	}

	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()

	e.ClearCache()
	return nil
}

func (e *Engine) evaluate(permission string, uc auth.UserContext, ec *EntityContext) bool {
	e.mu.RLock()
	rules := e.rules[permission]
	e.mu.RUnlock()

	for _, rule := range rules {
		if e.matches(permission, rule, uc, ec) {
			return true
		}
	}
	return false
}

// matches runs one predicate. A panicking or missing predicate is a non-match.
func (e *Engine) matches(permission string, rule Rule, uc auth.UserContext, ec *EntityContext) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"permission": permission,
				"rule":       rule.Name,
				"user_id":    uc.UserID,
				"panic":      fmt.Sprint(r),
			}).Error("Permission rule failed, treating as non-match")
			e.metrics.RecordRuleFailure(permission, rule.Name)
			matched = false
		}
	}()

	if rule.Check == nil {
		panic("rule has no predicate")
	}
	return rule.Check(uc, ec)
}

// sortRules orders rules by descending priority, keeping insertion order for ties.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
