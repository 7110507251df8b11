package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/astralisone/astralis-agency-server-sub001/internal/service"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/health"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/middleware"
)

// serviceName labels metrics and spans emitted by the router.
const serviceName = "storefront"

// RouterConfig holds the HTTP settings that vary per deployment.
type RouterConfig struct {
	CORS               middleware.CORSConfig
	TrustSessionHeader bool
	RequestTimeout     time.Duration
	// RateLimit throttles checkout and payment routes per session.
	RateLimit middleware.RateLimitConfig
	// PprofAllowedCIDRs may reach /debug/pprof. Empty disables it.
	PprofAllowedCIDRs []string
}

// Dependencies bundles the services the router dispatches to.
type Dependencies struct {
	Carts     *service.CartService
	Checkouts *service.CheckoutService
	Sessions  SessionIssuer
	// ValidateToken resolves a bearer token to its session id.
	ValidateToken middleware.TokenValidator
	Health        *health.Handler
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(deps Dependencies, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.MountPprof(r, cfg.PprofAllowedCIDRs, logger)

	sessionHandler := NewSessionHandler(deps.Sessions, deps.Carts, logger)
	cartHandler := NewCartHandler(deps.Carts, logger)
	checkoutHandler := NewCheckoutHandler(deps.Checkouts, logger)
	paypalHandler := NewPayPalHandler(deps.Checkouts, logger)

	requireSession := middleware.Session(deps.ValidateToken, middleware.SessionOptions{
		TrustSessionHeader: cfg.TrustSessionHeader,
	})

	limitPayments := middleware.RateLimit(cfg.RateLimit, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Post("/session", sessionHandler.Start)
		r.With(requireSession).Delete("/session", sessionHandler.End)

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireSession)

			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Get("/summary", cartHandler.GetSummary)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{itemId}", cartHandler.UpdateItemQuantity)
			r.Delete("/items/{itemId}", cartHandler.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Use(requireSession)
			r.Use(limitPayments)

			r.Get("/", checkoutHandler.List)
			r.Post("/", checkoutHandler.Start)
			r.Post("/capture", checkoutHandler.Capture)
			r.Get("/{id}", checkoutHandler.Get)
			r.Post("/{id}/retry", checkoutHandler.Retry)
		})
	})

	r.Route("/api/paypal", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(requireSession)
		r.Use(limitPayments)

		r.Post("/create-order", paypalHandler.CreateOrder)
		r.Post("/capture-order", paypalHandler.CaptureOrder)
	})

	return r
}
