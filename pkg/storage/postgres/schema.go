package postgres

// Schema is the subset of the application schema the authorization core reads.
// It sticks to SQL accepted by both PostgreSQL and SQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS organizations (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS organization_members (
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	user_id         TEXT NOT NULL REFERENCES users(id),
	role            TEXT NOT NULL,
	is_primary      BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (organization_id, user_id)
);

CREATE TABLE IF NOT EXISTS teams (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	name            TEXT NOT NULL,
	deleted_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS team_members (
	id         TEXT PRIMARY KEY,
	team_id    TEXT NOT NULL REFERENCES teams(id),
	user_id    TEXT NOT NULL REFERENCES users(id),
	role       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (team_id, user_id)
);

CREATE TABLE IF NOT EXISTS api_tokens (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	token_hash   TEXT NOT NULL UNIQUE,
	token_prefix TEXT NOT NULL,
	name         TEXT NOT NULL,
	expires_at   TIMESTAMP,
	last_used_at TIMESTAMP,
	created_at   TIMESTAMP NOT NULL,
	revoked_at   TIMESTAMP
);
`
