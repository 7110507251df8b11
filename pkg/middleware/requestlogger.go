package middleware

import (
	"log/slog"
	"net/http"

	"github.com/astralisone/astralis-agency-server-sub001/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, session_id, trace_id and span_id. Handlers read it back with
// logger.FromContext.
//
// Mount it after RequestLogging and Tracing, and inside Session for routes
// that carry a session.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := SessionIDFromContext(ctx); id != "" {
				ctx = logger.WithSessionID(ctx, id)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
