package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
	"github.com/fleetdesk/fleetdesk/pkg/teamaccess"
)

// Store reads users, teams, memberships and session tokens from SQL.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
	newID  func() string
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for data warnings
func WithStoreLogger(logger *logrus.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store over db
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		logger: logrus.New(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// teamRole parses a stored team role. An unknown value keeps the membership
// but grants no role.
func (s *Store) teamRole(teamID, userID, stored string) auth.TeamRole {
	role, err := auth.ParseTeamRole(stored)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"team_id": teamID,
			"user_id": userID,
			"role":    stored,
		}).Warn("Unknown team role, treating as unprivileged member")
		return ""
	}
	return role
}

// LookupUser returns the user's primary organization.
func (s *Store) LookupUser(ctx context.Context, userID string) (teamaccess.UserProfile, error) {
	query := `
		SELECT u.id, om.organization_id
		FROM users u
		LEFT JOIN organization_members om ON om.user_id = u.id AND om.is_primary
		WHERE u.id = $1
		LIMIT 1
	`
	var (
		profile teamaccess.UserProfile
		orgID   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&profile.UserID, &orgID)
	if err == sql.ErrNoRows {
		return teamaccess.UserProfile{}, fmt.Errorf("user %s: %w", userID, teamaccess.ErrUserNotFound)
	}
	if err != nil {
		return teamaccess.UserProfile{}, fmt.Errorf("failed to get user: %w", err)
	}
	if !orgID.Valid {
		return teamaccess.UserProfile{}, fmt.Errorf("user %s: %w", userID, teamaccess.ErrAppUserNotFound)
	}
	profile.OrganizationID = orgID.String
	return profile, nil
}

// GetTeam returns a team that has not been soft-deleted.
func (s *Store) GetTeam(ctx context.Context, teamID string) (teamaccess.Team, error) {
	query := `
		SELECT id, name, organization_id
		FROM teams
		WHERE id = $1 AND deleted_at IS NULL
	`
	var team teamaccess.Team
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(&team.ID, &team.Name, &team.OrganizationID)
	if err == sql.ErrNoRows {
		return teamaccess.Team{}, fmt.Errorf("team %s: %w", teamID, teamaccess.ErrTeamNotFound)
	}
	if err != nil {
		return teamaccess.Team{}, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// GetTeamMembership returns nil when userID is not a direct member of teamID.
func (s *Store) GetTeamMembership(ctx context.Context, teamID, userID string) (*teamaccess.Membership, error) {
	query := `
		SELECT id, role
		FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`
	m := &teamaccess.Membership{TeamID: teamID, UserID: userID}
	var role string
	err := s.db.QueryRowContext(ctx, query, teamID, userID).Scan(&m.ID, &role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team membership: %w", err)
	}
	m.Role = s.teamRole(teamID, userID, role)
	return m, nil
}

// GetOrgRole returns the user's role in orgID, or "" when the user is not a member.
func (s *Store) GetOrgRole(ctx context.Context, orgID, userID string) (auth.OrgRole, error) {
	query := `
		SELECT role
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`
	var role string
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get organization role: %w", err)
	}
	parsed, err := auth.ParseOrgRole(role)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"organization_id": orgID,
			"user_id":         userID,
			"role":            role,
		}).Warn("Unknown organization role, treating as member")
		return auth.OrgRoleMember, nil
	}
	return parsed, nil
}

// GetOrganizationName returns the display name of orgID
func (s *Store) GetOrganizationName(ctx context.Context, orgID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM organizations WHERE id = $1`, orgID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("organization %s not found", orgID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get organization name: %w", err)
	}
	return name, nil
}

// UserCanAccessTeam answers the access question in a single query: a direct
// membership or an owner/admin role in the team's organization.
func (s *Store) UserCanAccessTeam(ctx context.Context, userID, teamID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM teams t
			LEFT JOIN team_members tm ON tm.team_id = t.id AND tm.user_id = $1
			LEFT JOIN organization_members om ON om.organization_id = t.organization_id AND om.user_id = $1
			WHERE t.id = $2 AND t.deleted_at IS NULL
			  AND (tm.id IS NOT NULL OR om.role IN ('owner', 'admin', 'manager'))
		)
	`
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, userID, teamID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check team access: %w", err)
	}
	return ok, nil
}

// TeamMemberExists checks only the team_members relation
func (s *Store) TeamMemberExists(ctx context.Context, teamID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, teamID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check team member: %w", err)
	}
	return ok, nil
}

// AddTeamMember inserts the membership unless one exists. The existing
// record's id is returned with created=false.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID string, role auth.TeamRole) (string, bool, error) {
	query := `
		INSERT INTO team_members (id, team_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`
	id := s.newID()
	res, err := s.db.ExecContext(ctx, query, id, teamID, userID, string(role), s.now().UTC())
	if err != nil {
		return "", false, fmt.Errorf("failed to add team member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to add team member: %w", err)
	}
	if n == 1 {
		return id, true, nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID,
	).Scan(&existing)
	if err != nil {
		return "", false, fmt.Errorf("failed to load existing team member: %w", err)
	}
	return existing, false, nil
}

// LookupToken returns the token stored under hash, active or not.
func (s *Store) LookupToken(ctx context.Context, hash string) (*auth.APIToken, error) {
	query := `
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE token_hash = $1
	`
	tok := &auth.APIToken{}
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, hash).Scan(
		&tok.ID, &tok.UserID, &tok.TokenHash, &tok.TokenPrefix, &tok.Name,
		&expiresAt, &lastUsedAt, &tok.CreatedAt, &revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	tok.ExpiresAt = nullTime(expiresAt)
	tok.LastUsedAt = nullTime(lastUsedAt)
	tok.RevokedAt = nullTime(revokedAt)
	return tok, nil
}

// MarkTokenUsed records the last use of a token
func (s *Store) MarkTokenUsed(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, s.now().UTC(), tokenID)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	return nil
}

// CreateToken issues a session token for userID and stores its hash. The
// returned plaintext is the only copy. A zero ttl never expires.
func (s *Store) CreateToken(ctx context.Context, userID, name string, ttl time.Duration) (*auth.APIToken, string, error) {
	issued, err := auth.IssueToken()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	tok := &auth.APIToken{
		ID:          s.newID(),
		UserID:      userID,
		TokenHash:   issued.Hash,
		TokenPrefix: issued.Prefix,
		Name:        name,
		CreatedAt:   now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		tok.ExpiresAt = &expires
	}

	query := `
		INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		tok.ID, tok.UserID, tok.TokenHash, tok.TokenPrefix, tok.Name, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}
	return tok, issued.Plaintext, nil
}

// LoadUserContext builds the session context: primary organization, the
// role held there and every live team membership.
func (s *Store) LoadUserContext(ctx context.Context, userID string) (auth.UserContext, error) {
	profile, err := s.LookupUser(ctx, userID)
	if err != nil {
		return auth.UserContext{}, err
	}
	role, err := s.GetOrgRole(ctx, profile.OrganizationID, userID)
	if err != nil {
		return auth.UserContext{}, err
	}

	query := `
		SELECT tm.team_id, tm.role
		FROM team_members tm
		JOIN teams t ON t.id = tm.team_id
		WHERE tm.user_id = $1 AND t.deleted_at IS NULL
		ORDER BY tm.team_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return auth.UserContext{}, fmt.Errorf("failed to list team memberships: %w", err)
	}
	defer rows.Close()

	uc := auth.UserContext{
		UserID:         userID,
		OrganizationID: profile.OrganizationID,
		UserRole:       role,
	}
	for rows.Next() {
		var teamID, teamRole string
		if err := rows.Scan(&teamID, &teamRole); err != nil {
			return auth.UserContext{}, fmt.Errorf("failed to scan team membership: %w", err)
		}
		uc.TeamMemberships = append(uc.TeamMemberships, auth.TeamMembership{
			TeamID: teamID,
			Role:   s.teamRole(teamID, userID, teamRole),
		})
	}
	if err := rows.Err(); err != nil {
		return auth.UserContext{}, fmt.Errorf("failed to list team memberships: %w", err)
	}
	return uc, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ teamaccess.Store = (*Store)(nil)
