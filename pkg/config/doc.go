// Package config loads fleetdesk configuration from environment variables.
//
// Every setting has a default except FLEETDESK_DATABASE_URL.
//
// Server settings:
//
//	FLEETDESK_HOST="0.0.0.0"
//	FLEETDESK_PORT="8080"
//	FLEETDESK_SHUTDOWN_TIMEOUT="30s"
//	FLEETDESK_RATE_LIMIT_REQUESTS="600"
//	FLEETDESK_RATE_LIMIT_WINDOW="1m"
//
// Storage settings:
//
//	FLEETDESK_DATABASE_URL="postgres://localhost/fleetdesk"
//	FLEETDESK_DATABASE_MAX_CONNS="20"
//	FLEETDESK_REDIS_URL="redis://localhost:6379/0"  # optional
//	FLEETDESK_ORG_NAME_CACHE_TTL="10m"
//
// Permission engine:
//
//	FLEETDESK_PERMISSION_CACHE_TTL="5m"
//	FLEETDESK_PERMISSION_CACHE_SIZE="10000"
//	FLEETDESK_PERMISSION_SWEEP_SCHEDULE="@every 1m"
//	FLEETDESK_POLICY_FILE="/etc/fleetdesk/policy.yaml"
//	FLEETDESK_POLICY_WATCH="true"
//
// Team access:
//
//	FLEETDESK_TEAM_ACCESS_BUDGET="8s"
//	FLEETDESK_TEAM_ACCESS_PRIMARY_TIMEOUT="5s"
//	FLEETDESK_TEAM_ACCESS_SIMPLE_CHECK_ATTEMPTS="3"
//	FLEETDESK_TEAM_ACCESS_SIMPLE_CHECK_DELAY="100ms"
//
// Observability settings:
//
//	FLEETDESK_LOG_LEVEL="info"  # debug, info, warn, error
//	FLEETDESK_METRICS_ENABLED="true"
//	FLEETDESK_OTEL_ENABLED="true"
//	FLEETDESK_OTEL_ENDPOINT="otel-collector:4317"
package config
