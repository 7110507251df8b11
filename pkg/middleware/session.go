package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/logger"
)

// SessionIDHeader is accepted instead of a bearer token when a trusted gateway
// in front of the service has already authenticated the session.
const SessionIDHeader = "X-Session-ID"

type contextKeyType string

const sessionIDKey contextKeyType = "session_id"

// TokenValidator validates a bearer token and returns the session id it carries.
type TokenValidator func(token string) (string, error)

// SessionOptions configures the Session middleware.
type SessionOptions struct {
	// TrustSessionHeader accepts X-Session-ID without a token.
	TrustSessionHeader bool
}

// Session resolves the cart session for the request from an
// `Authorization: Bearer` token, or from X-Session-ID when trusted, and stores
// it in the context. Requests without a valid session get 401.
func Session(validate TokenValidator, opts SessionOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, msg := resolveSession(r, validate, opts)
			if sessionID == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "UNAUTHORIZED",
						Message:   msg,
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
				return
			}

			ctx := WithSessionID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveSession(r *http.Request, validate TokenValidator, opts SessionOptions) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if opts.TrustSessionHeader {
			if id := strings.TrimSpace(r.Header.Get(SessionIDHeader)); id != "" {
				return id, ""
			}
		}
		return "", "missing session token"
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", "invalid authorization header format"
	}

	sessionID, err := validate(strings.TrimSpace(token))
	if err != nil || sessionID == "" {
		return "", "invalid or expired session token"
	}
	return sessionID, ""
}

// WithSessionID stores the cart session id in ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session id stored by Session, or "".
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
