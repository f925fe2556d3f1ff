/**
 * @description
 * HTTP router setup for the income-service using go-chi/chi. Public calculator
 * and monetization routes, the payment webhook, and internal routes guarded by
 * the internal API key.
 */
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/app"
)

// RouterConfig holds the settings the router needs beyond the handlers.
type RouterConfig struct {
	InternalAPIKey          string
	AuthJWTSecret           string
	RateLimiter             app.RateLimiter
	CheckoutRateLimitPerMin int
	ReferralRateLimitPerMin int
	Logger                  *zap.Logger
}

// NewRouter creates a new Chi router and registers income-service routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = app.NoopRateLimiter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)

	// Signature verified in the handler; no user identity involved.
	r.Post("/api/webhooks/stripe", h.handleStripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(OptionalAuthMiddleware(cfg.AuthJWTSecret))

		r.Route("/api/income", func(r chi.Router) {
			r.Post("/project", h.handleProject)
			r.Post("/streams/summary", h.handleStreamSummary)
			r.Post("/snapshot", h.handleSnapshot)
		})

		r.Route("/api/monetization", func(r chi.Router) {
			r.Get("/flags", h.handleFlags)
			r.Get("/pricing", h.handlePricing)
			r.Get("/entitlement/{reportID}", h.handleEntitlement)
			r.Get("/referral/{reportID}", h.handleReferralStatus)
			r.Post("/referral/create", h.handleCreateReferral)
			r.With(RateLimitMiddleware(cfg.RateLimiter, "referral_track", cfg.ReferralRateLimitPerMin, cfg.Logger)).
				Post("/referral/track", h.handleTrackReferral)
		})

		r.Route("/api/checkout", func(r chi.Router) {
			r.Get("/success", h.handleCheckoutSuccess)
			r.Group(func(r chi.Router) {
				r.Use(RateLimitMiddleware(cfg.RateLimiter, "checkout", cfg.CheckoutRateLimitPerMin, cfg.Logger))
				r.Post("/pro-report", h.handleCheckout(checkoutProReport))
				r.Post("/premium-toolkit", h.handleCheckout(checkoutPremiumToolkit))
			})
		})

		r.Post("/api/reports/{reportID}/income", h.handleReport)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/entitlements/grant", h.handleInternalGrant)
		r.Post("/purchases/expire", h.handleInternalExpire)
	})

	return r
}
