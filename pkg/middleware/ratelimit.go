package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/httputil"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns per-user limits for the authorization API
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// Limiter decides whether one more request fits in the current window for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Config() RateLimitConfig
}

// LocalLimiter is a fixed-window limiter held in process memory. It is used
// when Redis is not configured.
type LocalLimiter struct {
	config  RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewLocalLimiter creates an in-memory limiter
func NewLocalLimiter(config RateLimitConfig) *LocalLimiter {
	return &LocalLimiter{
		config:  config,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Config returns the limiter configuration
func (l *LocalLimiter) Config() RateLimitConfig { return l.config }

// Allow counts a request against key
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.config.WindowDuration {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.config.RequestsPerWindow, remaining(l.config, w.count), nil
}

// Cleanup removes windows that have ended
func (l *LocalLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.config.WindowDuration {
			delete(l.windows, key)
		}
	}
}

// RedisLimiter shares fixed-window counters across instances through Redis
type RedisLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisLimiter creates a new Redis-backed rate limiter
func NewRedisLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

// Config returns the limiter configuration
func (l *RedisLimiter) Config() RateLimitConfig { return l.config }

// Allow increments the window counter for key. The expiry is only set by
// the first request of a window so the window does not slide.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, l.config.RequestsPerWindow, fmt.Errorf("redis error: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, redisKey, l.config.WindowDuration).Err(); err != nil {
			return true, l.config.RequestsPerWindow, fmt.Errorf("redis error: %w", err)
		}
	}

	n := int(count)
	return n <= l.config.RequestsPerWindow, remaining(l.config, n), nil
}

func remaining(cfg RateLimitConfig, count int) int {
	if r := cfg.RequestsPerWindow - count; r > 0 {
		return r
	}
	return 0
}

// RateLimit limits requests per authenticated user, or per client IP before
// authentication. Limiter errors fail open.
func RateLimit(limiter Limiter, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if authCtx := GetAuthContext(r); authCtx != nil {
				key = "user:" + authCtx.User.UserID
			}

			cfg := limiter.Config()
			allowed, left, err := limiter.Allow(r.Context(), key)
			if err != nil {
				observability.FromContext(r.Context(), logger).WithError(err).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", cfg.WindowDuration.Seconds()))
				httputil.WriteErrorMessage(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
