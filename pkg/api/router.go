package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fleetdesk/fleetdesk/pkg/middleware"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

// APIPrefix is the path prefix of the authenticated API
const APIPrefix = "/api/v1"

// RouterConfig carries everything the router wires together
type RouterConfig struct {
	Permissions *PermissionHandlers
	Teams       *TeamHandlers
	Auth        *middleware.AuthMiddleware
	RateLimiter middleware.Limiter
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	Logger      *logrus.Logger
	ServiceName string
}

// NewRouter builds the HTTP handler: health probes and metrics are public,
// everything under /api/v1 is authenticated and rate limited.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RequestID(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.HTTPMiddleware(routeTemplate))
		router.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}
	if cfg.Health != nil {
		observability.RegisterHealthRoutes(router, cfg.Health)
	}

	// The limiter runs twice: keyed by client IP before authentication so
	// token guessing is throttled, then keyed by the authenticated user.
	api := router.PathPrefix(APIPrefix).Subrouter()
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter, cfg.Logger))
	}
	if cfg.Auth != nil {
		api.Use(cfg.Auth.Handler)
		if cfg.RateLimiter != nil {
			api.Use(middleware.RateLimit(cfg.RateLimiter, cfg.Logger))
		}
	}
	if cfg.Permissions != nil {
		cfg.Permissions.RegisterRoutes(api)
	}
	if cfg.Teams != nil {
		cfg.Teams.RegisterRoutes(api)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "fleetdesk"
	}
	return otelhttp.NewHandler(router, serviceName)
}

// routeTemplate returns the matched route pattern, keeping metric labels
// free of ids.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
