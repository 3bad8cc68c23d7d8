package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/pkg/contextkeys"
)

func TestNewLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", &buf)

	logger.WithField("team_id", "t1").Debug("resolved")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "resolved", line["msg"])
	assert.Equal(t, "t1", line["team_id"])
	assert.Equal(t, "debug", line["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("bogus"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	t.Run("derives fields from context", func(t *testing.T) {
		ctx := contextkeys.WithRequestID(context.Background(), "req-1")
		ctx = contextkeys.WithUserID(ctx, "u1")

		entry := FromContext(ctx, logger)

		assert.Equal(t, "req-1", entry.Data["request_id"])
		assert.Equal(t, "u1", entry.Data["user_id"])
	})

	t.Run("prefers stored entry", func(t *testing.T) {
		stored := logger.WithField("component", "api")
		ctx := WithLogger(context.Background(), stored)

		assert.Same(t, stored, FromContext(ctx, logger))
	})
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordPermissionCheck("equipment.view", true)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordTeamAccess("team_member", true, 20*time.Millisecond)
	m.RecordStrategy("simple_check", "error")
	m.RecordRepair("created")
	m.SetCacheEntries(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("equipment.view", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PermissionCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TeamAccessResolutionsTotal.WithLabelValues("team_member", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TeamAccessStrategyTotal.WithLabelValues("simple_check", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PermissionCacheEntries))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPermissionCheck("x", false)
		m.RecordRuleFailure("x", "rule")
		m.RecordTeamAccess("error", false, time.Second)
		m.RecordRepair("failed")
	})
}

func TestMetrics_HTTPMiddleware(t *testing.T) {
	m := NewMetrics(nil)
	handler := m.HTTPMiddleware(func(*http.Request) string { return "/teams/{teamID}/access" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teams/t1/access", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/teams/{teamID}/access", "404")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "fleetdesk_http_requests_total")
}

func TestHealthChecker(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		status := NewHealthChecker(db, rdb, "test").Check(context.Background())

		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis down degrades", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer rdb.Close()
		mr.Close()

		status := NewHealthChecker(db, rdb, "test").Check(context.Background())

		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("database down fails readiness", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

		rec := httptest.NewRecorder()
		NewHealthChecker(db, nil, "test").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "connection refused"))
	})

	t.Run("liveness always ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthChecker(nil, nil, "test").Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), StatusHealthy)
	})
}

func TestShutdownManager_RunsAllInReverse(t *testing.T) {
	logger := NewLogger("error", &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, time.Second)

	var order []string
	sm.Register("db", func(context.Context) error {
		order = append(order, "db")
		return nil
	})
	sm.Register("redis", func(context.Context) error {
		order = append(order, "redis")
		return errors.New("already closed")
	})
	sm.Register("sweeper", func(context.Context) error {
		order = append(order, "sweeper")
		return nil
	})

	err := sm.Shutdown()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: already closed")
	assert.Equal(t, []string{"sweeper", "redis", "db"}, order)
}

func TestShutdownManager_WaitReturnsOnCancel(t *testing.T) {
	sm := NewShutdownManager(NewLogger("error", &bytes.Buffer{}), nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.Wait(ctx))
}

func TestShutdownManager_RunsOnce(t *testing.T) {
	sm := NewShutdownManager(NewLogger("error", &bytes.Buffer{}), nil, time.Second)
	calls := 0
	sm.Register("db", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, sm.Shutdown())
	require.NoError(t, sm.Shutdown())
	assert.Equal(t, 1, calls)
}

func TestShutdownManager_ReleaseOnError(t *testing.T) {
	// startup registers resources as it acquires them and fails midway
	startup := func(sm *ShutdownManager, fail bool) (err error) {
		defer sm.ReleaseOnError(&err)
		sm.Register("postgres", func(context.Context) error { return nil })
		if fail {
			return errors.New("redis unreachable")
		}
		return nil
	}

	t.Run("failed startup releases", func(t *testing.T) {
		sm := NewShutdownManager(NewLogger("error", &bytes.Buffer{}), nil, time.Second)
		var released []string
		sm.Register("otel", func(context.Context) error {
			released = append(released, "otel")
			return nil
		})

		require.Error(t, startup(sm, true))
		assert.Equal(t, []string{"otel"}, released)
		// later shutdown is a no-op
		require.NoError(t, sm.Shutdown())
		assert.Len(t, released, 1)
	})

	t.Run("successful startup keeps resources", func(t *testing.T) {
		sm := NewShutdownManager(NewLogger("error", &bytes.Buffer{}), nil, time.Second)
		released := false
		sm.Register("otel", func(context.Context) error {
			released = true
			return nil
		})

		require.NoError(t, startup(sm, false))
		assert.False(t, released)
	})
}
