package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/api"
	"github.com/fleetdesk/fleetdesk/pkg/config"
	"github.com/fleetdesk/fleetdesk/pkg/middleware"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
	"github.com/fleetdesk/fleetdesk/pkg/permissions"
	"github.com/fleetdesk/fleetdesk/pkg/storage/postgres"
	"github.com/fleetdesk/fleetdesk/pkg/teamaccess"
)

var version = "dev"

var (
	initSchema = flag.Bool("init-schema", false, "Create missing tables before serving")
	issueFor   = flag.String("issue-token", "", "Issue a session token for this user id, print it and exit")
	tokenName  = flag.String("token-name", "fleetctl", "Name recorded with an issued token")
	tokenTTL   = flag.Duration("token-ttl", 0, "Lifetime of an issued token (0 never expires)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if *issueFor != "" {
		// stdout carries only the token
		logger.SetOutput(os.Stderr)
		if err := issueToken(cfg, logger); err != nil {
			logger.WithError(err).Fatal("Failed to issue token")
		}
		return
	}
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("fleetdesk exited with error")
	}
	logger.Info("fleetdesk stopped")
}

func run(cfg *config.Config, logger *logrus.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Released in reverse registration order, after the server drains or
	// as soon as startup fails.
	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	defer shutdown.ReleaseOnError(&err)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", otelProviders.Shutdown)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
	}

	db, err := postgres.Open(ctx, connectionConfig(cfg.Database))
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	logger.Info("Connected to PostgreSQL")

	if *initSchema {
		if _, err := db.ExecContext(ctx, postgres.Schema); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("Schema initialized")
	}

	redisClient, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	store := postgres.NewStore(db, postgres.WithStoreLogger(logger))
	var teamStore teamaccess.Store = store
	if redisClient != nil {
		teamStore = postgres.NewOrgNameCache(store, redisClient, cfg.Redis.OrgNameTTL, logger)
	}

	engine, err := permissions.NewEngine(
		permissions.WithCacheTTL(cfg.Authz.CacheTTL),
		permissions.WithCacheSize(cfg.Authz.CacheSize),
		permissions.WithLogger(logger),
		permissions.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create permission engine: %w", err)
	}
	if cfg.Authz.PolicyFile != "" {
		policy, err := permissions.LoadPolicyFile(cfg.Authz.PolicyFile)
		if err != nil {
			return err
		}
		if err := engine.ApplyPolicy(policy); err != nil {
			return err
		}
		logger.WithField("rules", len(policy.Rules)).Info("Permission policy loaded")
	}

	stopSweeper, err := engine.StartSweeper(cfg.Authz.SweepSchedule)
	if err != nil {
		return err
	}
	shutdown.Register("cache sweeper", func(context.Context) error {
		stopSweeper()
		return nil
	})

	limiterConfig := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Server.RateLimitRequests,
		WindowDuration:    cfg.Server.RateLimitWindow,
	}
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, limiterConfig, "fleetdesk:ratelimit")
	} else {
		local := middleware.NewLocalLimiter(limiterConfig)
		limiterCron := cron.New()
		if _, err := limiterCron.AddFunc(cfg.Authz.SweepSchedule, local.Cleanup); err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup: %w", err)
		}
		limiterCron.Start()
		shutdown.Register("rate limit cleanup", func(ctx context.Context) error {
			select {
			case <-limiterCron.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		limiter = local
	}

	resolver := teamaccess.NewResolver(teamStore, teamaccess.Config{
		Budget:                  cfg.TeamAccess.Budget,
		PrimaryTimeout:          cfg.TeamAccess.PrimaryTimeout,
		SimpleCheckAttempts:     cfg.TeamAccess.SimpleCheckAttempts,
		SimpleCheckInitialDelay: cfg.TeamAccess.SimpleCheckInitialDelay,
	},
		teamaccess.WithLogger(logger),
		teamaccess.WithMetrics(metrics),
	)

	if cfg.Authz.PolicyFile != "" && cfg.Authz.WatchPolicy {
		watcher, err := permissions.NewPolicyWatcher(cfg.Authz.PolicyFile, engine, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("Policy watcher stopped")
			}
		}()
	}

	handler := api.NewRouter(api.RouterConfig{
		Permissions: api.NewPermissionHandlers(engine),
		Teams:       api.NewTeamHandlers(resolver, engine, logger),
		Auth:        middleware.NewAuthMiddleware(store, logger),
		RateLimiter: limiter,
		Health:      observability.NewHealthChecker(db, redisClient, version),
		Metrics:     metrics,
		Logger:      logger,
		ServiceName: cfg.Observability.OTelServiceName,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.SetServer(server)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    server.Addr,
			"version": version,
		}).Info("fleetdesk listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			stop()
		}
	}()

	shutdownErr := shutdown.Wait(ctx)
	select {
	case err := <-serverErr:
		return errors.Join(fmt.Errorf("http server: %w", err), shutdownErr)
	default:
		return shutdownErr
	}
}

// connectRedis returns a nil client when Redis is not configured
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (*redis.Client, error) {
	if !cfg.Enabled() {
		logger.Info("Redis not configured, using in-process rate limits and no org name cache")
		return nil, nil
	}
	client, err := postgres.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to Redis")
	return client, nil
}

func connectionConfig(cfg config.DatabaseConfig) postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		URL:         cfg.URL,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		Timeout:     cfg.Timeout,
		MaxLifetime: cfg.MaxLifetime,
		MaxIdleTime: cfg.MaxIdleTime,
	}
}

func issueToken(cfg *config.Config, logger *logrus.Logger) error {
	ctx := context.Background()
	db, err := postgres.Open(ctx, connectionConfig(cfg.Database))
	if err != nil {
		return err
	}
	defer db.Close()

	tok, plaintext, err := postgres.NewStore(db, postgres.WithStoreLogger(logger)).CreateToken(ctx, *issueFor, *tokenName, *tokenTTL)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"user_id":      tok.UserID,
		"token_id":     tok.ID,
		"token_prefix": tok.TokenPrefix,
	}).Info("Token issued")
	fmt.Println(plaintext)
	return nil
}
