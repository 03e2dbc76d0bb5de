package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/vendorpay-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/vendorpay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/vendorpay-backend/api/middleware"
	"github.com/angelmondragon/vendorpay-backend/internal/gateway"
	"github.com/angelmondragon/vendorpay-backend/internal/payouts"
	"github.com/angelmondragon/vendorpay-backend/pkg/config"
	"github.com/angelmondragon/vendorpay-backend/pkg/db"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
	"github.com/angelmondragon/vendorpay-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	payoutService payouts.Service,
	gatewayAdapter gateway.Adapter,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	webhookPolicy := middleware.NewRateLimitPolicy(
		"gateway-webhook",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, redisClient, logg)).
			Post("/gateway", webhookcontrollers.GatewayWebhook(payoutService, gatewayAdapter, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleVendor, logg))
			r.Use(middleware.VendorContext(logg))

			r.Get("/earnings", controllers.VendorEarnings(payoutService, logg))
			r.Route("/payouts", func(r chi.Router) {
				r.Post("/", controllers.VendorRequestPayout(payoutService, logg))
				r.Get("/", controllers.VendorListPayouts(payoutService, logg))
				r.Get("/{payoutId}", controllers.VendorPayoutDetail(payoutService, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))

			r.Post("/vendors/{vendorId}/payouts", controllers.AdminRequestPayout(payoutService, logg))
			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.AdminListPayouts(payoutService, logg))
				r.Get("/{payoutId}", controllers.AdminPayoutDetail(payoutService, logg))
				r.Post("/{payoutId}/approve", controllers.AdminApprovePayout(payoutService, logg))
				r.Post("/{payoutId}/reject", controllers.AdminRejectPayout(payoutService, logg))
			})
		})
	})

	return r
}
