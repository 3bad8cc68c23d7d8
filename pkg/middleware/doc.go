// Package middleware provides the HTTP middleware in front of the
// authorization API.
//
// # Middleware Components
//
// RequestID: assigns X-Request-ID and a request-scoped log entry
//
//	router.Use(middleware.RequestID(logger))
//
// AuthMiddleware: resolves "Authorization: Bearer fdk_..." to an auth.UserContext
//
//	authMW := middleware.NewAuthMiddleware(store, logger)
//	api.Use(authMW.Handler)
//
// RateLimit: fixed-window limits per user, backed by Redis when available
//
//	api.Use(middleware.RateLimit(middleware.NewRedisLimiter(client, cfg, ""), logger))
//
// RequireOrgRole: rejects users below a minimum organization role
//
//	api.Handle("/permissions/cache", middleware.RequireOrgRole(auth.OrgRoleAdmin)(h))
package middleware
