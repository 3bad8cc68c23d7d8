// Package postgres implements the team access store and session lookups on
// PostgreSQL, with an optional Redis cache for organization names.
//
// Queries use only SQL that SQLite also accepts, so the store can be
// exercised against an in-memory SQLite database in tests.
package postgres
