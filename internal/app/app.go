package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/astralisone/astralis-agency-server-sub001/internal/config"
	"github.com/astralisone/astralis-agency-server-sub001/internal/event"
	handler "github.com/astralisone/astralis-agency-server-sub001/internal/handler/http"
	"github.com/astralisone/astralis-agency-server-sub001/internal/provider"
	mockprovider "github.com/astralisone/astralis-agency-server-sub001/internal/provider/mock"
	"github.com/astralisone/astralis-agency-server-sub001/internal/provider/paypal"
	pgrepo "github.com/astralisone/astralis-agency-server-sub001/internal/repository/postgres"
	redisrepo "github.com/astralisone/astralis-agency-server-sub001/internal/repository/redis"
	"github.com/astralisone/astralis-agency-server-sub001/internal/service"
	"github.com/astralisone/astralis-agency-server-sub001/internal/session"
	"github.com/astralisone/astralis-agency-server-sub001/migrations"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/database"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/health"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/httpclient"
	pkgkafka "github.com/astralisone/astralis-agency-server-sub001/pkg/kafka"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/middleware"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/tracing"
)

// ServiceName identifies this service in logs, traces and metrics.
const ServiceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	shutdownTracer func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// Anything opened before a failure is closed again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Tracing.
	tracingCfg := tracing.DefaultConfig(ServiceName)
	tracingCfg.Environment = cfg.Environment
	tracingCfg.Enabled = cfg.OTelEnabled
	tracingCfg.OTLPEndpoint = cfg.OTelEndpoint
	tracingCfg.SampleRate = cfg.OTelSampleRate
	a.shutdownTracer, err = tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Redis holds carts and capture locks.
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisCfg.Password = cfg.RedisPass
	redisCfg.DB = cfg.RedisDB
	a.rdb, err = database.NewRedisClient(ctx, redisCfg, logger)
	if err != nil {
		return nil, err
	}

	// PostgreSQL holds checkout attempts.
	a.pool, err = database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.PostgresURL), logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, err
	}
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	if err := prometheus.Register(database.NewPoolStatsCollector(a.pool, ServiceName)); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
	}

	// Domain events.
	var publisher event.Publisher = event.NopPublisher{}
	if cfg.KafkaEnabled {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		kafkaCfg.Async = cfg.KafkaAsync
		a.producer = pkgkafka.NewProducer(kafkaCfg, logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, domain events are dropped")
	}
	eventProducer := event.NewProducer(publisher, logger)

	paymentProvider, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Build the dependency graph.
	cartService := service.NewCartService(
		redisrepo.NewCartRepository(a.rdb, cfg.CartTTL), eventProducer, logger, cfg.CartTTL,
	)
	checkoutService := service.NewCheckoutService(
		pgrepo.NewCheckoutRepository(a.pool),
		cartService,
		paymentProvider,
		redisrepo.NewCaptureLock(a.rdb, cfg.CaptureLockTTL),
		eventProducer,
		logger,
	)
	sessions := session.NewManager(cfg.JWTSecret, cfg.CartTTL)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	if a.producer != nil {
		healthHandler.Register("kafka", a.producer.Ping)
	}

	// HTTP router.
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	router := handler.NewRouter(handler.Dependencies{
		Carts:         cartService,
		Checkouts:     checkoutService,
		Sessions:      sessions,
		ValidateToken: sessions.Parse,
		Health:        healthHandler,
	}, handler.RouterConfig{
		CORS:               cors,
		TrustSessionHeader: cfg.TrustSessionHeader,
		RequestTimeout:     cfg.RequestTimeout,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// newProvider builds the configured payment provider.
func newProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.PaymentProvider {
	case config.ProviderMock:
		logger.Warn("using mock payment provider")
		return mockprovider.NewProvider(mockprovider.Options{}), nil
	case config.ProviderPayPal:
		cbCfg := httpclient.DefaultCircuitBreakerConfig("paypal")
		cbCfg.FailureRatio = cfg.CBFailureRatio
		cbCfg.MinRequests = cfg.CBMinRequests
		cbCfg.Timeout = cfg.CBOpenTimeout

		doer := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.NoRetryConfig(cfg.PayPalTimeout)), cbCfg, logger,
		)
		return paypal.NewClient(paypal.Config{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			BrandName:    cfg.PayPalBrandName,
		}, doer, logger), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}

// Handler returns the HTTP handler, for tests that drive the app in-process.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeResources()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.closeResources()
	a.logger.Info("application shutdown complete")
	return nil
}

// closeResources releases clients in reverse order of creation. Fields left
// nil by a failed NewApp are skipped.
func (a *App) closeResources() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}
