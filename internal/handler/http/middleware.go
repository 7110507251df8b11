package http

import (
	"net/http"
	"strings"

	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/middleware"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
// Bodyless POSTs such as checkout start are allowed without a Content-Type.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sessionID returns the session resolved by middleware.Session. Routes are
// only mounted behind that middleware, so it is never empty in practice.
func sessionID(r *http.Request) string {
	return middleware.SessionIDFromContext(r.Context())
}
