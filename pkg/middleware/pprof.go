package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/astralisone/astralis-agency-server-sub001/pkg/httputil"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/logger"
)

// MountPprof exposes /debug/pprof/* to clients inside allowedCIDRs. Nothing is
// mounted when no valid prefix is configured.
func MountPprof(r chi.Router, allowedCIDRs []string, l *slog.Logger) {
	prefixes := parsePrefixes(allowedCIDRs, l)
	if len(prefixes) == 0 {
		return
	}

	r.Group(func(r chi.Router) {
		r.Use(allowPrefixes(prefixes, l))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist rejects requests whose RemoteAddr is outside cidrs with 403.
// Invalid entries are logged and skipped. Forwarding headers are ignored.
func IPAllowlist(cidrs []string, l *slog.Logger) func(http.Handler) http.Handler {
	return allowPrefixes(parsePrefixes(cidrs, l), l)
}

func parsePrefixes(cidrs []string, l *slog.Logger) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			l.Warn("invalid allowlist CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes
}

func allowPrefixes(prefixes []netip.Prefix, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if addr, err := netip.ParseAddr(host); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			l.WarnContext(r.Context(), "access denied by IP allowlist",
				slog.String("ip", host),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:      "FORBIDDEN",
					Message:   "access restricted by IP allowlist",
					RequestID: logger.CorrelationIDFromContext(r.Context()),
				},
			})
		})
	}
}
