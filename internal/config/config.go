package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/agamenonmacondo/avashop-sub001/pkg/config"
)

// Config holds all configuration for the storefront backend.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort       int           `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"avashop"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"avashop_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"avashop"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Apply embedded migrations on startup.
	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis backs the catalog cache and consumer idempotency.
	RedisEnabled    bool          `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost       string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass       string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`

	// Cache-Control max-age of public catalog responses. Zero omits it.
	CatalogMaxAge time.Duration `env:"CATALOG_MAX_AGE" envDefault:"60s"`

	// Kafka. No brokers means events are dropped and no consumer runs.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Auth provider tokens
	JWTSecret   string   `env:"JWT_SECRET"`
	JWTIssuer   string   `env:"JWT_ISSUER" envDefault:""`
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`

	// Bold
	BoldAPIKey          string `env:"BOLD_API_KEY"`
	BoldIntegritySecret string `env:"BOLD_INTEGRITY_SECRET"`
	BoldWebhookSecret   string `env:"BOLD_WEBHOOK_SECRET"`
	BoldCheckoutURL     string `env:"BOLD_CHECKOUT_URL" envDefault:"https://checkout.bold.co/payment/link"`

	// Coinbase Commerce. Without an API key the provider is not registered.
	CoinbaseAPIKey        string `env:"COINBASE_API_KEY"`
	CoinbaseWebhookSecret string `env:"COINBASE_WEBHOOK_SECRET"`
	CoinbaseAPIURL        string `env:"COINBASE_API_URL" envDefault:"https://api.commerce.coinbase.com/charges"`

	// Circuit breaker settings for payment provider calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Storefront
	StoreBaseURL   string        `env:"STORE_BASE_URL" envDefault:"http://localhost:3000"`
	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"30m"`
	SweepInterval  time.Duration `env:"RESERVATION_SWEEP_INTERVAL" envDefault:"1m"`
	ReviewTokenTTL time.Duration `env:"REVIEW_TOKEN_TTL" envDefault:"720h"`

	// SMTP. An empty host logs review emails instead of sending them.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"AvaShop <no-reply@avashop.co>"`

	// CORS and rate limiting
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load avashop config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production rules.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RequireWebhookSignature reports whether unsigned callbacks are refused.
// Outside production a missing webhook secret accepts them.
func (c *Config) RequireWebhookSignature() bool {
	return c.IsProduction()
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, d := range map[string]time.Duration{
		"HTTP_REQUEST_TIMEOUT":       c.RequestTimeout,
		"RESERVATION_TTL":            c.ReservationTTL,
		"RESERVATION_SWEEP_INTERVAL": c.SweepInterval,
		"REVIEW_TOKEN_TTL":           c.ReviewTokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.CatalogCacheTTL < 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must not be negative, got %s", c.CatalogCacheTTL)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if u, err := url.ParseRequestURI(c.StoreBaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid STORE_BASE_URL %q", c.StoreBaseURL)
	}
	if c.CoinbaseAPIKey != "" {
		if _, err := url.ParseRequestURI(c.CoinbaseAPIURL); err != nil {
			return fmt.Errorf("invalid COINBASE_API_URL %q: %w", c.CoinbaseAPIURL, err)
		}
	}

	if !c.IsProduction() {
		return nil
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.BoldAPIKey == "" || c.BoldIntegritySecret == "" {
		return fmt.Errorf("BOLD_API_KEY and BOLD_INTEGRITY_SECRET are required in production")
	}
	if c.BoldWebhookSecret == "" {
		return fmt.Errorf("BOLD_WEBHOOK_SECRET is required in production")
	}
	if c.CoinbaseAPIKey != "" && c.CoinbaseWebhookSecret == "" {
		return fmt.Errorf("COINBASE_WEBHOOK_SECRET is required when COINBASE_API_KEY is set")
	}
	return nil
}
