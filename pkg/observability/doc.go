// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown for fleetdesk.
//
// # Logging
//
// Loggers are logrus loggers with a JSON formatter:
//
//	logger := observability.NewLogger("info", os.Stdout)
//	observability.FromContext(ctx, logger).WithField("team_id", teamID).Info("resolved")
//
// # Metrics
//
// Metrics live on a dedicated registry so tests never collide:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.RecordTeamAccess("team_member", true, elapsed)
//	router.Handle("/metrics", metrics.Handler())
//
// Every Record method is safe on a nil *Metrics, so components can be built
// without metrics in tests.
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
//	ctx, span := observability.Tracer().Start(ctx, "teamaccess.Resolve")
//
// # Health
//
// Readiness fails when Postgres is unreachable and degrades when Redis is.
package observability
