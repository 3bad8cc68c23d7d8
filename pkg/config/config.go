package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Authz         AuthzConfig
	TeamAccess    TeamAccessConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Per-user request limit on /api/v1
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis settings. Redis is optional; an empty URL disables it.
type RedisConfig struct {
	URL        string
	OrgNameTTL time.Duration
}

// Enabled reports whether a Redis URL was configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// AuthzConfig holds permission engine settings
type AuthzConfig struct {
	CacheTTL      time.Duration
	CacheSize     int
	SweepSchedule string
	PolicyFile    string
	WatchPolicy   bool
}

// TeamAccessConfig holds team access resolver settings
type TeamAccessConfig struct {
	Budget                  time.Duration
	PrimaryTimeout          time.Duration
	SimpleCheckAttempts     int
	SimpleCheckInitialDelay time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Authz:         loadAuthzConfig(),
		TeamAccess:    loadTeamAccessConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:              getEnv("FLEETDESK_HOST", "0.0.0.0"),
		Port:              getEnv("FLEETDESK_PORT", "8080"),
		ReadTimeout:       getEnvDuration("FLEETDESK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getEnvDuration("FLEETDESK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getEnvDuration("FLEETDESK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getEnvDuration("FLEETDESK_SHUTDOWN_TIMEOUT", 30*time.Second),
		RateLimitRequests: getEnvInt("FLEETDESK_RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:   getEnvDuration("FLEETDESK_RATE_LIMIT_WINDOW", time.Minute),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("FLEETDESK_DATABASE_URL", ""),
		MaxConns:    getEnvInt("FLEETDESK_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("FLEETDESK_DATABASE_MIN_CONNS", 5),
		Timeout:     getEnvDuration("FLEETDESK_DATABASE_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("FLEETDESK_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("FLEETDESK_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("FLEETDESK_REDIS_URL", ""),
		OrgNameTTL: getEnvDuration("FLEETDESK_ORG_NAME_CACHE_TTL", 10*time.Minute),
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		CacheTTL:      getEnvDuration("FLEETDESK_PERMISSION_CACHE_TTL", 5*time.Minute),
		CacheSize:     getEnvInt("FLEETDESK_PERMISSION_CACHE_SIZE", 10000),
		SweepSchedule: getEnv("FLEETDESK_PERMISSION_SWEEP_SCHEDULE", "@every 1m"),
		PolicyFile:    getEnv("FLEETDESK_POLICY_FILE", ""),
		WatchPolicy:   getEnvBool("FLEETDESK_POLICY_WATCH", true),
	}
}

func loadTeamAccessConfig() TeamAccessConfig {
	return TeamAccessConfig{
		Budget:                  getEnvDuration("FLEETDESK_TEAM_ACCESS_BUDGET", 8*time.Second),
		PrimaryTimeout:          getEnvDuration("FLEETDESK_TEAM_ACCESS_PRIMARY_TIMEOUT", 5*time.Second),
		SimpleCheckAttempts:     getEnvInt("FLEETDESK_TEAM_ACCESS_SIMPLE_CHECK_ATTEMPTS", 3),
		SimpleCheckInitialDelay: getEnvDuration("FLEETDESK_TEAM_ACCESS_SIMPLE_CHECK_DELAY", 100*time.Millisecond),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("FLEETDESK_LOG_LEVEL", "info"),
		MetricsEnabled:     getEnvBool("FLEETDESK_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FLEETDESK_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FLEETDESK_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FLEETDESK_OTEL_SERVICE_NAME", "fleetdesk"),
		OTelServiceVersion: getEnv("FLEETDESK_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FLEETDESK_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.RateLimitRequests <= 0 || c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Authz.CacheTTL < 0 {
		return fmt.Errorf("permission cache TTL must not be negative")
	}
	if c.Authz.CacheSize <= 0 {
		return fmt.Errorf("permission cache size must be positive")
	}
	if _, err := cron.ParseStandard(c.Authz.SweepSchedule); err != nil {
		return fmt.Errorf("invalid permission sweep schedule %q: %w", c.Authz.SweepSchedule, err)
	}

	if c.TeamAccess.Budget <= 0 {
		return fmt.Errorf("team access budget must be positive")
	}
	if c.TeamAccess.PrimaryTimeout <= 0 || c.TeamAccess.PrimaryTimeout > c.TeamAccess.Budget {
		return fmt.Errorf("team access primary timeout must be positive and within the budget")
	}
	if c.TeamAccess.SimpleCheckAttempts < 1 {
		return fmt.Errorf("simple check attempts must be at least 1")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Observability.LogLevel)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
