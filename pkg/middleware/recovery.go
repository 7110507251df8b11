package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/logger"
)

// RecoveredMessage is shown to clients when a handler panics. The request can
// be retried safely: cart mutations are single writes and captures are guarded.
const RecoveredMessage = "something went wrong, please try again"

// Recovery turns a handler panic into a 500 response in the standard envelope
// and logs the stack. http.ErrAbortHandler is re-raised so net/http can abort
// the connection as intended.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", v),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				if rec.wroteHeader {
					return
				}
				httputil.WriteJSON(rec, http.StatusInternalServerError, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "INTERNAL_ERROR",
						Message:   RecoveredMessage,
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
