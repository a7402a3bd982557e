package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agamenonmacondo/avashop-sub001/internal/auth"
	"github.com/agamenonmacondo/avashop-sub001/internal/config"
	"github.com/agamenonmacondo/avashop-sub001/internal/event"
	handler "github.com/agamenonmacondo/avashop-sub001/internal/handler/http"
	"github.com/agamenonmacondo/avashop-sub001/internal/mailer"
	"github.com/agamenonmacondo/avashop-sub001/internal/payment"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository/postgres"
	rediscache "github.com/agamenonmacondo/avashop-sub001/internal/repository/redis"
	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	"github.com/agamenonmacondo/avashop-sub001/migrations"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
	"github.com/agamenonmacondo/avashop-sub001/pkg/health"
	"github.com/agamenonmacondo/avashop-sub001/pkg/httpclient"
	pkgkafka "github.com/agamenonmacondo/avashop-sub001/pkg/kafka"
	"github.com/agamenonmacondo/avashop-sub001/pkg/middleware"
	"github.com/agamenonmacondo/avashop-sub001/pkg/tracing"
)

// consumerDedupTTL is how long processed event ids are remembered.
const consumerDedupTTL = 7 * 24 * time.Hour

// App wires together all dependencies and runs the storefront backend.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	redis       *goredis.Client
	producer    *pkgkafka.Producer
	dlq         *pkgkafka.DLQProducer
	consumer    *pkgkafka.Consumer
	limiter     *middleware.RateLimiter
	checkout    *service.CheckoutService
	httpServer  *http.Server
	shutdownOTL func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize tracing.
	shutdownOTL, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  handler.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTELEndpoint,
		SampleRate:   cfg.OTELSampleRate,
		Enabled:      cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownOTL = shutdownOTL

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			a.closeClients()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	// Initialize Redis.
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			a.closeClients()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))
	}

	// Initialize Kafka producer.
	publisher := event.NewProducer(event.NopPublisher{}, logger)
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		publisher = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("no kafka brokers configured, domain events are dropped")
	}

	// Build the dependency graph.
	store := postgres.NewStore(pool)

	var (
		products    repository.ProductRepository = store.Products()
		invalidator service.CatalogInvalidator
	)
	if a.redis != nil && cfg.CatalogCacheTTL > 0 {
		cache := rediscache.NewProductCache(store.Products(), a.redis, cfg.CatalogCacheTTL, logger)
		products, invalidator = cache, cache
	}

	providers, err := a.paymentProviders()
	if err != nil {
		a.closeClients()
		return nil, err
	}

	mail := a.mailer()
	reviewService := service.NewReviewService(store, mail, publisher, service.ReviewConfig{
		StoreBaseURL: cfg.StoreBaseURL,
		TokenTTL:     cfg.ReviewTokenTTL,
	}, logger)
	a.checkout = service.NewCheckoutService(store, providers, publisher, invalidator, service.CheckoutConfig{
		ReservationTTL: cfg.ReservationTTL,
	}, logger)

	svcs := handler.Services{
		Catalog:  service.NewCatalogService(products, logger),
		Cart:     service.NewCartService(store.Carts(), store.Products(), logger),
		Checkout: a.checkout,
		Webhooks: service.NewWebhookService(store, providers, publisher, invalidator, cfg.RequireWebhookSignature(), logger),
		Reviews:  reviewService,
		Orders:   service.NewOrderService(store, publisher, invalidator, logger),
	}

	// Review requests follow approved payments.
	if len(cfg.KafkaBrokers) > 0 {
		var h pkgkafka.Handler = event.NewReviewRequestHandler(reviewService, logger).Handle
		if a.redis != nil {
			dedup := pkgkafka.NewRedisIdempotencyStore(a.redis, event.ReviewRequestGroupID, consumerDedupTTL)
			h = pkgkafka.IdempotentHandler(dedup, event.ReviewRequestGroupID, h, logger)
		}
		a.consumer = event.NewReviewRequestConsumer(cfg.KafkaBrokers, h, a.dlq, logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.redis != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// HTTP router.
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	validator := auth.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.AdminEmails)
	router := handler.NewRouter(svcs, validator.Validate, healthHandler, handler.RouterConfig{
		CORS:            middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, AllowCredentials: true},
		PprofCIDRs:      cfg.PprofAllowedCIDRs,
		CatalogCacheTTL: cfg.CatalogMaxAge,
		RequestTimeout:  cfg.RequestTimeout,
		Limiter:         a.limiter,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// paymentProviders registers Bold and, when configured, Coinbase Commerce.
func (a *App) paymentProviders() (*payment.Registry, error) {
	cfg := a.cfg
	providers := []payment.Provider{
		payment.NewBold(payment.BoldConfig{
			APIKey:          cfg.BoldAPIKey,
			IntegritySecret: cfg.BoldIntegritySecret,
			WebhookSecret:   cfg.BoldWebhookSecret,
			CheckoutURL:     cfg.BoldCheckoutURL,
			RedirectURL:     cfg.StoreBaseURL + "/checkout/result",
		}),
	}
	if cfg.CoinbaseAPIKey == "" {
		a.logger.Warn("coinbase commerce disabled, COINBASE_API_KEY is not set")
		return payment.NewRegistry(providers...), nil
	}

	cb := httpclient.DefaultCircuitBreakerConfig("coinbase-commerce")
	cb.MaxRequests = cfg.CBMaxRequests
	cb.Interval = time.Duration(cfg.CBInterval) * time.Second
	cb.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	cb.FailureRatio = cfg.CBFailureRatio
	cb.MinRequests = cfg.CBMinRequests
	client := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cb, a.logger)

	providers = append(providers, payment.NewCoinbase(payment.CoinbaseConfig{
		APIKey:        cfg.CoinbaseAPIKey,
		WebhookSecret: cfg.CoinbaseWebhookSecret,
		APIURL:        cfg.CoinbaseAPIURL,
		RedirectURL:   cfg.StoreBaseURL + "/checkout/result",
		CancelURL:     cfg.StoreBaseURL + "/cart",
	}, client))
	return payment.NewRegistry(providers...), nil
}

func (a *App) mailer() mailer.Mailer {
	if a.cfg.SMTPHost == "" {
		a.logger.Warn("SMTP_HOST is not set, review emails are logged instead of sent")
		return mailer.NewLogMailer(a.logger)
	}
	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		From:     a.cfg.SMTPFrom,
	})
}

// Run starts the HTTP server, the review consumer and the reservation
// sweeper, and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	workCtx, stopWork := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.checkout.RunReservationSweeper(workCtx, a.cfg.SweepInterval)
	}()

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(workCtx); err != nil {
				errCh <- fmt.Errorf("review request consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	// Stop taking requests before the workers go away.
	a.shutdownHTTP()
	stopWork()
	wg.Wait()

	a.closeClients()
	return runErr
}

func (a *App) shutdownHTTP() {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
}

// closeClients releases outbound clients in reverse dependency order.
func (a *App) closeClients() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownOTL != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownOTL(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
	a.logger.Info("application shutdown complete")
}
