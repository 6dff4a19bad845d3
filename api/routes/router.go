package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campustix/campustix-backend/api/controllers"
	webhookcontrollers "github.com/campustix/campustix-backend/api/controllers/webhooks"
	"github.com/campustix/campustix-backend/api/middleware"
	"github.com/campustix/campustix-backend/internal/checkin"
	"github.com/campustix/campustix-backend/internal/inventory"
	"github.com/campustix/campustix-backend/internal/ledger"
	"github.com/campustix/campustix-backend/internal/refunds"
	"github.com/campustix/campustix-backend/internal/tiers"
	"github.com/campustix/campustix-backend/internal/transfers"
	gatewayhook "github.com/campustix/campustix-backend/internal/webhooks/gateway"
	"github.com/campustix/campustix-backend/pkg/config"
	"github.com/campustix/campustix-backend/pkg/db"
	"github.com/campustix/campustix-backend/pkg/enums"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/redis"
	"github.com/campustix/campustix-backend/pkg/ticketcode"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsRegistry *prometheus.Registry,
	tierService tiers.Service,
	inventoryService inventory.Service,
	ledgerService ledger.Service,
	refundService refunds.Service,
	transferService transfers.Service,
	checkinService checkin.Service,
	operatorFinder middleware.OperatorFinder,
	ticketCodec *ticketcode.Codec,
	gatewayWebhookService *gatewayhook.Service,
	webhookSigningSecret string,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	purchasePolicy := middleware.NewRateLimitPolicy(
		"purchase",
		cfg.RateLimit.PurchaseWindow,
		cfg.RateLimit.PurchaseIPLimit,
		cfg.RateLimit.PurchaseUserLimit,
	)
	checkinPolicy := middleware.NewRateLimitPolicy(
		"checkin",
		cfg.RateLimit.CheckInWindow,
		cfg.RateLimit.CheckInIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/gateway", webhookcontrollers.GatewayWebhook(gatewayWebhookService, webhookSigningSecret, logg))

		r.Get("/events/{eventId}/tiers", controllers.ListEventTiers(tierService, logg))
		r.Get("/tiers/{tierId}/availability", controllers.GetTierAvailability(inventoryService, logg))

		r.Route("/checkin", func(r chi.Router) {
			r.Use(middleware.OperatorAuth(operatorFinder, logg))
			r.Use(middleware.RateLimit(checkinPolicy, redisClient, logg))
			r.Use(middleware.Idempotency(redisClient, logg))
			r.Post("/", controllers.CheckIn(checkinService, logg))
			r.Get("/lookup", controllers.LookupTicketCode(checkinService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.With(middleware.RateLimit(purchasePolicy, redisClient, logg)).
				Post("/purchase", controllers.ReserveAndPay(ledgerService, ticketCodec, logg))

			r.Get("/transactions", controllers.ListUserTransactions(ledgerService, logg))
			r.Get("/transactions/{transactionId}", controllers.GetTransaction(ledgerService, ticketCodec, logg))

			r.Get("/tickets", controllers.ListUserTickets(ledgerService, ticketCodec, logg))
			r.Post("/tickets/{ticketId}/transfer", controllers.TransferTicket(transferService, logg))
			r.Get("/tickets/{ticketId}/transfers", controllers.ListTicketTransfers(transferService, logg))

			r.Post("/refunds", controllers.RequestRefund(refundService, logg))
			r.Get("/refunds", controllers.ListUserRefunds(refundService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/tiers", controllers.AdminCreateTier(tierService, logg))
		r.Post("/tiers/{tierId}/close", controllers.AdminCloseTier(tierService, logg))
		r.Post("/refunds/{refundId}/decision", controllers.AdminDecideRefund(refundService, logg))
		r.Post("/refunds/{refundId}/complete", controllers.AdminCompleteRefund(refundService, logg))
	})

	return r
}
