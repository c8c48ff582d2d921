package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soukly/promotion/pkg/health"
	"github.com/soukly/promotion/pkg/middleware"

	"github.com/soukly/promotion/internal/service"
)

// NewRouter creates a chi router with all promotion service routes registered.
func NewRouter(
	evaluationService *service.EvaluationService,
	usageService *service.UsageService,
	adminService *service.AdminService,
	healthHandler *health.Handler,
	corsConfig middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	// RequestLogging writes the single completion log line; RequestLogger
	// only stores a request-scoped logger (correlation/trace fields) in the
	// context for handlers and httputil.WriteError to pick up. It must run
	// after Tracing so the trace and span IDs are available.
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics())

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	promotionHandler := NewPromotionHandler(evaluationService, usageService, logger)
	adminHandler := NewAdminHandler(adminService, logger)

	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/evaluate", promotionHandler.Evaluate)

		// Product pages poll this; short-lived client caching is fine
		// because the backing snapshot is itself cached.
		r.With(middleware.CacheControl(time.Minute)).
			Get("/products/{productID}", promotionHandler.GetProductOffers)
		r.With(middleware.CacheControl(time.Minute)).
			Get("/products/{productID}/active", promotionHandler.CheckActiveOffers)
	})

	r.Route("/api/v1/usages", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", promotionHandler.RecordUsage)
		r.Get("/{orderID}", promotionHandler.GetOrderUsages)
		r.Post("/{orderID}/release", promotionHandler.ReleaseUsage)
	})

	r.Route("/api/v1/flash-sales", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", adminHandler.CreateFlashSale)
		r.Get("/", adminHandler.ListFlashSales)
		r.With(middleware.CacheControl(time.Minute)).
			Get("/running", promotionHandler.ListRunningFlashSales)
		r.Get("/{id}", adminHandler.GetFlashSale)
		r.Post("/{id}/entries", adminHandler.AddFlashSaleEntry)
		r.Post("/{id}/activate", adminHandler.ActivateFlashSale)
		r.Post("/{id}/deactivate", adminHandler.DeactivateFlashSale)
	})

	r.Route("/api/v1/special-offers", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", adminHandler.CreateSpecialOffer)
		r.Get("/", adminHandler.ListSpecialOffers)
		r.With(middleware.CacheControl(time.Minute)).
			Get("/running", promotionHandler.ListRunningSpecialOffers)
		r.Get("/{id}", adminHandler.GetSpecialOffer)
		r.Post("/{id}/activate", adminHandler.ActivateSpecialOffer)
		r.Post("/{id}/deactivate", adminHandler.DeactivateSpecialOffer)
	})

	return r
}
