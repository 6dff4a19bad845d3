package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/campustix/campustix-backend/api/routes"
	"github.com/campustix/campustix-backend/internal/checkin"
	"github.com/campustix/campustix-backend/internal/inventory"
	"github.com/campustix/campustix-backend/internal/ledger"
	"github.com/campustix/campustix-backend/internal/refunds"
	"github.com/campustix/campustix-backend/internal/tiers"
	"github.com/campustix/campustix-backend/internal/transfers"
	gatewayhook "github.com/campustix/campustix-backend/internal/webhooks/gateway"
	"github.com/campustix/campustix-backend/pkg/config"
	"github.com/campustix/campustix-backend/pkg/db"
	"github.com/campustix/campustix-backend/pkg/gateway"
	"github.com/campustix/campustix-backend/pkg/logger"
	"github.com/campustix/campustix-backend/pkg/metrics"
	"github.com/campustix/campustix-backend/pkg/migrate"
	"github.com/campustix/campustix-backend/pkg/outbox"
	"github.com/campustix/campustix-backend/pkg/redis"
	"github.com/campustix/campustix-backend/pkg/ticketcode"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	ticketCodec, err := ticketcode.NewCodec(cfg.Tickets.CodeSecret)
	if err != nil {
		logg.Error(context.Background(), "failed to create ticket codec", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	ticketingMetrics := metrics.NewTicketingMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), redisClient, logg, ticketingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	tierService, err := tiers.NewService(tiers.NewRepository(dbClient.DB()), dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create tier service", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledgerRepo, dbClient, inventoryService, outboxService, gatewayClient, logg, ticketingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	refundService, err := refunds.NewService(refunds.NewRepository(dbClient.DB()), ledgerRepo, dbClient, inventoryService, outboxService, gatewayClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create refund service", err)
		os.Exit(1)
	}

	transferService, err := transfers.NewService(transfers.NewRepository(dbClient.DB()), dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create transfer service", err)
		os.Exit(1)
	}

	checkinService, err := checkin.NewService(checkin.NewRepository(dbClient.DB()), dbClient, ticketCodec, outboxService, logg, ticketingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkin service", err)
		os.Exit(1)
	}

	webhookGuard, err := gatewayhook.NewIdempotencyGuard(redisClient, 72*time.Hour, "gateway-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := gatewayhook.NewService(gatewayhook.ServiceParams{
		Ledger: ledgerService,
		Guard:  webhookGuard,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			tierService,
			inventoryService,
			ledgerService,
			refundService,
			transferService,
			checkinService,
			checkin.NewOperatorRepository(dbClient.DB()),
			ticketCodec,
			webhookService,
			gatewayClient.SigningSecret(),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
