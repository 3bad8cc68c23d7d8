// Package permissions implements the fleetdesk permission engine: a
// prioritized, first-match-wins rule evaluator with a TTL decision cache.
//
// Rules for a permission key are visited in descending priority. The first
// rule whose predicate matches grants the permission; no match denies it. A
// predicate that panics is logged and treated as a non-match, so one broken
// rule never fails a whole check.
//
//	engine, err := permissions.NewEngine(permissions.WithLogger(logger))
//	ok := engine.HasPermission(permissions.PermEquipmentEdit, uc,
//		&permissions.EntityContext{TeamID: "t1"})
//
// Decisions are cached per (permission, user, organization, entity) for
// DefaultCacheTTL. Call ClearCache after role or membership changes.
//
// Operators can layer extra rules from a YAML file (see Policy) and have them
// hot-reloaded with PolicyWatcher.
package permissions
