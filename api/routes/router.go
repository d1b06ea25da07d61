package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sproutswap/sproutswap-backend/api/controllers"
	webhookcontrollers "github.com/sproutswap/sproutswap-backend/api/controllers/webhooks"
	"github.com/sproutswap/sproutswap-backend/api/middleware"
	"github.com/sproutswap/sproutswap-backend/internal/notifications"
	"github.com/sproutswap/sproutswap-backend/internal/offers"
	"github.com/sproutswap/sproutswap-backend/internal/settings"
	"github.com/sproutswap/sproutswap-backend/internal/settlement"
	paypalwebhook "github.com/sproutswap/sproutswap-backend/internal/webhooks/paypal"
	"github.com/sproutswap/sproutswap-backend/pkg/config"
	"github.com/sproutswap/sproutswap-backend/pkg/db"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/paypal"
	"github.com/sproutswap/sproutswap-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache db.Pinger,
	idemStore redis.IdempotencyStore,
	offersService offers.Service,
	settlementService settlement.Service,
	settingsService settings.Service,
	notificationsService notifications.Service,
	paypalClient *paypal.Client,
	paypalWebhookService *paypalwebhook.Service,
	paypalWebhookGuard *paypalwebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paypal", webhookcontrollers.PayPalWebhook(paypalWebhookService, paypalClient, paypalWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/offers", func(r chi.Router) {
			r.Post("/", controllers.CreateOffer(offersService, logg))
			r.Get("/incoming", controllers.ListIncomingOffers(offersService, logg))
			r.Get("/mine", controllers.ListMyOffers(offersService, logg))
			r.Get("/pending", controllers.PendingOfferActions(offersService, logg))
			r.Get("/{offerId}", controllers.GetOffer(offersService, logg))
			r.Post("/{offerId}/accept", controllers.AcceptOffer(offersService, logg))
			r.Post("/{offerId}/reject", controllers.RejectOffer(offersService, logg))
			r.Post("/{offerId}/counter", controllers.CounterOffer(offersService, logg))
			r.Post("/{offerId}/respond", controllers.RespondToCounter(offersService, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.InitiateTransaction(settlementService, logg))
			r.Get("/purchases", controllers.ListPurchases(settlementService, logg))
			r.Get("/sales", controllers.ListSales(settlementService, logg))
			r.Get("/{transactionId}", controllers.GetTransaction(settlementService, logg))
			r.Post("/{transactionId}/cancel", controllers.CancelTransaction(settlementService, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/fees", controllers.GetFeeConfig(settingsService, logg))
			r.Get("/{key}", controllers.GetPublicSetting(settingsService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", controllers.AdminListSettings(settingsService, logg))
			r.Put("/{key}", controllers.AdminUpdateSetting(settingsService, logg))
		})
		r.Post("/transactions/{transactionId}/refund", controllers.AdminRefundTransaction(settlementService, logg))
	})

	return r
}
