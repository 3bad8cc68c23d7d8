package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission engine metrics
	PermissionChecksTotal       *prometheus.CounterVec
	PermissionCacheTotal        *prometheus.CounterVec
	PermissionRuleFailuresTotal *prometheus.CounterVec
	PermissionCacheEntries      prometheus.Gauge

	// Team access metrics
	TeamAccessResolutionsTotal *prometheus.CounterVec
	TeamAccessDuration         prometheus.Histogram
	TeamAccessStrategyTotal    *prometheus.CounterVec
	TeamMembershipRepairsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
// A nil registry gets a fresh one so tests stay isolated.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_permission_checks_total",
				Help: "Total number of permission decisions",
			},
			[]string{"permission", "allowed"},
		),
		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_permission_cache_total",
				Help: "Permission decision cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		PermissionRuleFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_permission_rule_failures_total",
				Help: "Rule predicates that panicked and were treated as non-matches",
			},
			[]string{"permission", "rule"},
		),
		PermissionCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetdesk_permission_cache_entries",
				Help: "Number of cached permission decisions after the last sweep",
			},
		),

		TeamAccessResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_team_access_resolutions_total",
				Help: "Team access resolutions by access reason",
			},
			[]string{"reason", "has_access"},
		),
		TeamAccessDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleetdesk_team_access_duration_seconds",
				Help:    "Team access resolution duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 4, 8},
			},
		),
		TeamAccessStrategyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_team_access_strategy_total",
				Help: "Team access strategy attempts by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		TeamMembershipRepairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetdesk_team_membership_repairs_total",
				Help: "Team membership repair requests by outcome",
			},
			[]string{"outcome"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCacheTotal,
		m.PermissionRuleFailuresTotal,
		m.PermissionCacheEntries,
		m.TeamAccessResolutionsTotal,
		m.TeamAccessDuration,
		m.TeamAccessStrategyTotal,
		m.TeamMembershipRepairsTotal,
	)

	return m
}

// Registry returns the registry the metrics were registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPermissionCheck records a permission decision. Safe on a nil receiver.
func (m *Metrics) RecordPermissionCheck(permission string, allowed bool) {
	if m == nil {
		return
	}
	m.PermissionChecksTotal.WithLabelValues(permission, strconv.FormatBool(allowed)).Inc()
}

// RecordCacheLookup records a decision cache hit or miss. Safe on a nil receiver.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.PermissionCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordRuleFailure records a rule predicate failure. Safe on a nil receiver.
func (m *Metrics) RecordRuleFailure(permission, rule string) {
	if m == nil {
		return
	}
	m.PermissionRuleFailuresTotal.WithLabelValues(permission, rule).Inc()
}

// SetCacheEntries records the decision cache size. Safe on a nil receiver.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.PermissionCacheEntries.Set(float64(n))
}

// RecordTeamAccess records a finished team access resolution. Safe on a nil receiver.
func (m *Metrics) RecordTeamAccess(reason string, hasAccess bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.TeamAccessResolutionsTotal.WithLabelValues(reason, strconv.FormatBool(hasAccess)).Inc()
	m.TeamAccessDuration.Observe(duration.Seconds())
}

// RecordStrategy records one strategy attempt of the fallback ladder. Safe on a nil receiver.
func (m *Metrics) RecordStrategy(strategy, outcome string) {
	if m == nil {
		return
	}
	m.TeamAccessStrategyTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordRepair records a membership repair outcome. Safe on a nil receiver.
func (m *Metrics) RecordRepair(outcome string) {
	if m == nil {
		return
	}
	m.TeamMembershipRepairsTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and latencies.
// routeName maps a request to a low-cardinality path label.
func (m *Metrics) HTTPMiddleware(routeName func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if routeName != nil {
				path = routeName(r)
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
