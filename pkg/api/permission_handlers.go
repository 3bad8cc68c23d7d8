package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fleetdesk/fleetdesk/pkg/auth"
	"github.com/fleetdesk/fleetdesk/pkg/httputil"
	"github.com/fleetdesk/fleetdesk/pkg/middleware"
	"github.com/fleetdesk/fleetdesk/pkg/permissions"
)

// Authorizer evaluates permissions for a user context
type Authorizer interface {
	HasPermission(permission string, uc auth.UserContext, ec *permissions.EntityContext) bool
	BatchCheck(perms []string, uc auth.UserContext, ec *permissions.EntityContext) map[string]bool
	ClearCache()
}

// PermissionHandlers exposes the permission engine over HTTP
type PermissionHandlers struct {
	engine Authorizer
}

// NewPermissionHandlers creates permission handlers
func NewPermissionHandlers(engine Authorizer) *PermissionHandlers {
	return &PermissionHandlers{engine: engine}
}

// RegisterRoutes registers permission routes on an authenticated router
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions/check", h.CheckPermission).Methods(http.MethodPost)
	router.HandleFunc("/permissions/batch", h.BatchCheck).Methods(http.MethodPost)
	router.Handle("/permissions/cache",
		middleware.RequireOrgRole(auth.OrgRoleAdmin)(http.HandlerFunc(h.ClearCache)),
	).Methods(http.MethodDelete)
}

// CheckPermission evaluates one permission for the authenticated user.
// An unknown permission is a denial, not an error.
func (h *PermissionHandlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "authentication required")
		return
	}

	var req CheckPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Permission = strings.TrimSpace(req.Permission)
	if req.Permission == "" {
		httputil.WriteBadRequest(w, r, "permission is required")
		return
	}

	httputil.WriteSuccess(w, CheckPermissionResponse{
		Permission: req.Permission,
		Allowed:    h.engine.HasPermission(req.Permission, authCtx.User, req.Entity),
	})
}

// BatchCheck evaluates several permissions against the same entity
func (h *PermissionHandlers) BatchCheck(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, r, "authentication required")
		return
	}

	var req BatchCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Permissions) == 0 {
		httputil.WriteBadRequest(w, r, "permissions must not be empty")
		return
	}
	if len(req.Permissions) > maxBatchPermissions {
		httputil.WriteBadRequest(w, r, "too many permissions in one batch")
		return
	}

	httputil.WriteSuccess(w, BatchCheckResponse{
		Results: h.engine.BatchCheck(req.Permissions, authCtx.User, req.Entity),
	})
}

// ClearCache drops every cached decision
func (h *PermissionHandlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearCache()
	httputil.WriteNoContent(w)
}
