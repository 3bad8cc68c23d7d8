package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/async"
	"github.com/fleetdesk/fleetdesk/pkg/auth"
	"github.com/fleetdesk/fleetdesk/pkg/contextkeys"
	"github.com/fleetdesk/fleetdesk/pkg/httputil"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

// markUsedTimeout bounds the last-used bookkeeping write
const markUsedTimeout = 2 * time.Second

// SessionStore resolves bearer tokens to a user context
type SessionStore interface {
	LookupToken(ctx context.Context, hash string) (*auth.APIToken, error)
	LoadUserContext(ctx context.Context, userID string) (auth.UserContext, error)
	MarkTokenUsed(ctx context.Context, tokenID string) error
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	store  SessionStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(store SessionStore, logger *logrus.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logrus.New()
	}
	return &AuthMiddleware{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Handler wraps an HTTP handler with authentication. Requests without a
// valid, active token are rejected with 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := observability.FromContext(ctx, m.logger)

		plaintext, err := auth.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				httputil.WriteUnauthorized(w, r, "missing authorization header")
				return
			}
			httputil.WriteUnauthorized(w, r, "invalid authorization header format")
			return
		}

		token, err := m.store.LookupToken(ctx, auth.HashToken(plaintext))
		if err != nil {
			if !errors.Is(err, auth.ErrTokenNotFound) {
				log.WithError(err).Error("Token lookup failed")
				httputil.WriteInternalError(w, r)
				return
			}
			httputil.WriteUnauthorized(w, r, "invalid or expired token")
			return
		}
		if !token.Active(m.now()) {
			httputil.WriteUnauthorized(w, r, "invalid or expired token")
			return
		}

		uc, err := m.store.LoadUserContext(ctx, token.UserID)
		if err != nil {
			log.WithError(err).WithField("user_id", token.UserID).Warn("Failed to load session context")
			httputil.WriteUnauthorized(w, r, "session user not found")
			return
		}

		async.SafeGo(ctx, markUsedTimeout, "mark_token_used", m.logger, func(ctx context.Context) error {
			return m.store.MarkTokenUsed(ctx, token.ID)
		})

		ctx = contextkeys.WithAuth(ctx, &auth.AuthContext{User: uc, Token: token})
		ctx = contextkeys.WithUserID(ctx, uc.UserID)
		ctx = observability.WithLogger(ctx, log.WithField("user_id", uc.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// RequireOrgRole creates middleware that requires at least min in the
// user's own organization.
func RequireOrgRole(min auth.OrgRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, r, "authentication required")
				return
			}
			if !authCtx.User.UserRole.AtLeast(min) {
				httputil.WriteForbidden(w, r, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
