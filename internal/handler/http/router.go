package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agamenonmacondo/avashop-sub001/internal/service"
	"github.com/agamenonmacondo/avashop-sub001/pkg/health"
	"github.com/agamenonmacondo/avashop-sub001/pkg/middleware"
)

// ServiceName labels metrics and traces of the HTTP layer.
const ServiceName = "avashop"

// Services are the application services behind the routes.
type Services struct {
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Checkout *service.CheckoutService
	Webhooks *service.WebhookService
	Reviews  *service.ReviewService
	Orders   *service.OrderService
}

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORS            middleware.CORSConfig
	PprofCIDRs      []string
	CatalogCacheTTL time.Duration
	RequestTimeout  time.Duration

	// Limiter guards webhook, review and checkout routes. Nil disables it.
	Limiter *middleware.RateLimiter
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	svcs Services,
	validate middleware.TokenValidator,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	limit := func(next http.Handler) http.Handler { return next }
	if cfg.Limiter != nil {
		limit = cfg.Limiter.Handler
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	catalogHandler := NewCatalogHandler(svcs.Catalog, svcs.Reviews, logger)
	cartHandler := NewCartHandler(svcs.Cart, logger)
	checkoutHandler := NewCheckoutHandler(svcs.Checkout, logger)
	webhookHandler := NewWebhookHandler(svcs.Webhooks, logger)
	reviewHandler := NewReviewHandler(svcs.Reviews, logger)
	adminHandler := NewAdminHandler(svcs.Orders, svcs.Reviews, logger)

	auth := middleware.Auth(validate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Public catalog
		r.Group(func(r chi.Router) {
			if cfg.CatalogCacheTTL > 0 {
				r.Use(middleware.CacheControl(int(cfg.CatalogCacheTTL.Seconds())))
			}
			r.Get("/products", catalogHandler.ListProducts)
			r.Get("/products/{idOrSlug}", catalogHandler.GetProduct)
			r.Get("/products/{idOrSlug}/reviews", catalogHandler.ListReviews)
		})

		// Cart
		r.Route("/cart", func(r chi.Router) {
			r.Use(auth)
			r.Use(middleware.NoStore)

			r.Get("/", cartHandler.GetCart)
			r.Post("/", cartHandler.AddItem)
			r.Delete("/", cartHandler.ClearCart)
			r.Put("/items/{productId}", cartHandler.SetItemQuantity)
			r.Delete("/items/{productId}", cartHandler.RemoveItem)
		})

		// Checkout
		r.With(limit, auth, middleware.NoStore).Post("/checkout", checkoutHandler.Checkout)

		// Payment callbacks are authenticated by signature, not bearer token.
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(limit)
			r.Post("/payments", webhookHandler.ReceiveBold)
			r.Post("/{provider}", webhookHandler.Receive)
		})

		// Reviews are authorised by their single use token.
		r.With(limit).Post("/reviews", reviewHandler.SubmitReview)

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth)
			r.Use(middleware.RequireRole(middleware.RoleAdmin))
			r.Use(middleware.NoStore)

			r.Get("/products", catalogHandler.AdminListProducts)
			r.Post("/products", catalogHandler.CreateProduct)
			r.Put("/products/{id}", catalogHandler.UpdateProduct)
			r.Patch("/products/{id}/stock", catalogHandler.SetStock)

			r.Get("/orders", adminHandler.ListOrders)
			r.Get("/orders/{id}", adminHandler.GetOrder)
			r.Patch("/orders/{id}/status", adminHandler.UpdateOrderStatus)
			r.Post("/orders/{id}/review-requests", adminHandler.IssueReviewRequest)

			r.Get("/webhook-events", adminHandler.ListWebhookEvents)
		})
	})

	return r
}
