package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Carts    *service.CartService
	Reviews  *service.ReviewService
	Products *service.ProductService
	Users    *service.UserService

	Tokens middleware.TokenValidator
	Health *health.Handler

	LoginRateLimit float64
	LoginRateBurst int
	SecureCookies  bool
	CORS           middleware.CORSConfig
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := middleware.Auth(cfg.Tokens)
	requireAdmin := middleware.RequireRole(string(domain.RoleAdmin))
	userLogger := middleware.RequestLogger(logger)

	userHandler := NewUserHandler(cfg.Users, cfg.SecureCookies, logger)
	cartHandler := NewCartHandler(cfg.Carts, logger)
	productHandler := NewProductHandler(cfg.Products, logger)
	reviewHandler := NewReviewHandler(cfg.Reviews, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.With(middleware.RateLimit(cfg.LoginRateLimit, cfg.LoginRateBurst, logger)).Post("/login", userHandler.Login)
			r.Post("/refresh", userHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, userLogger)
				r.Post("/logout", userHandler.Logout)
				r.Get("/me", userHandler.Me)
				r.Patch("/me/avatar", userHandler.UpdateAvatar)
				r.Post("/me/password", userHandler.ChangePassword)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireAuth, userLogger)

			r.Get("/", cartHandler.GetCart)
			r.Post("/", cartHandler.AddItem)
			r.Delete("/", cartHandler.ClearCart)
			r.Patch("/{productId}", cartHandler.UpdateQuantity)
			r.Delete("/{productId}", cartHandler.RemoveItem)
		})

		r.Route("/products", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.CacheControl(60))
				r.Get("/", productHandler.ListProducts)
				r.Get("/featured", productHandler.ListFeatured)
				r.Get("/recommended", productHandler.ListRecommended)
				r.Get("/search", productHandler.Search)
				r.Get("/{id}", productHandler.GetProduct)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, userLogger, requireAdmin)
				r.Post("/", productHandler.CreateProduct)
				r.Patch("/{id}/featured", productHandler.ToggleFeatured)
				r.Delete("/{id}", productHandler.DeleteProduct)
			})

			r.Route("/{productId}/reviews", func(r chi.Router) {
				r.Get("/", reviewHandler.ListReviews)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth, userLogger)
					r.Post("/", reviewHandler.AddReview)
					r.Patch("/", reviewHandler.EditReview)
					r.Delete("/", reviewHandler.DeleteReview)
				})
			})
		})
	})

	return r
}
