package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/contextkeys"
	"github.com/fleetdesk/fleetdesk/pkg/observability"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen caps client-supplied ids
const maxRequestIDLen = 128

// RequestID assigns every request an id, echoes it in the response and
// stores a log entry carrying it in the request context.
func RequestID(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := contextkeys.WithRequestID(r.Context(), id)
			entry := logrus.NewEntry(logger).WithFields(logrus.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ctx = observability.WithLogger(ctx, observability.WithTraceContext(ctx, entry))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
