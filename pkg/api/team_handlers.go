package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/httputil"
	"github.com/fleetdesk/fleetdesk/pkg/middleware"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
	"github.com/fleetdesk/fleetdesk/pkg/teamaccess"
)

// TeamAccessService resolves and repairs team access
type TeamAccessService interface {
	ResolveTeamAccess(ctx context.Context, userID, teamID string) *teamaccess.Result
	RepairTeamMembership(ctx context.Context, userID, teamID string) teamaccess.RepairResult
}

// CacheClearer drops cached permission decisions
type CacheClearer interface {
	ClearCache()
}

// TeamHandlers exposes team access resolution and repair over HTTP
type TeamHandlers struct {
	service TeamAccessService
	cache   CacheClearer
	logger  *logrus.Logger
}

// NewTeamHandlers creates team handlers. cache may be nil.
func NewTeamHandlers(service TeamAccessService, cache CacheClearer, logger *logrus.Logger) *TeamHandlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &TeamHandlers{
		service: service,
		cache:   cache,
		logger:  logger,
	}
}

// RegisterRoutes registers team routes on an authenticated router
func (h *TeamHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/teams/{teamID}/access", h.GetTeamAccess).Methods(http.MethodGet)
	router.HandleFunc("/teams/{teamID}/membership/repair", h.RepairMembership).Methods(http.MethodPost)
}

// GetTeamAccess resolves the authenticated user's access to a team. Every
// outcome is a 200 carrying the access reason, except a missing team which
// is a 404 with the same body.
func (h *TeamHandlers) GetTeamAccess(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "authentication required")
		return
	}
	teamID, ok := httputil.PathStringOrError(w, r, "teamID")
	if !ok {
		return
	}

	result := h.service.ResolveTeamAccess(r.Context(), authCtx.User.UserID, teamID)

	status := http.StatusOK
	if result.AccessReason == teamaccess.ReasonTeamNotFound {
		status = http.StatusNotFound
	}
	httputil.WriteJSON(w, status, result)
}

// RepairMembership adds the authenticated user to the team as a manager.
// Repair is idempotent; failures are returned with a 422 and the message verbatim.
func (h *TeamHandlers) RepairMembership(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "authentication required")
		return
	}
	teamID, ok := httputil.PathStringOrError(w, r, "teamID")
	if !ok {
		return
	}

	result := h.service.RepairTeamMembership(r.Context(), authCtx.User.UserID, teamID)
	if !result.Success {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	if result.Created && h.cache != nil {
		// cached denials for this user predate the new membership
		h.cache.ClearCache()
		observability.FromContext(r.Context(), h.logger).
			WithField("team_id", teamID).
			Info("Permission cache cleared after membership repair")
	}
	httputil.WriteSuccess(w, result)
}
