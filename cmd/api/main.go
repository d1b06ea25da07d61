package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sproutswap/sproutswap-backend/api/routes"
	"github.com/sproutswap/sproutswap-backend/internal/listings"
	"github.com/sproutswap/sproutswap-backend/internal/notifications"
	"github.com/sproutswap/sproutswap-backend/internal/offers"
	"github.com/sproutswap/sproutswap-backend/internal/settings"
	"github.com/sproutswap/sproutswap-backend/internal/settlement"
	paypalwebhook "github.com/sproutswap/sproutswap-backend/internal/webhooks/paypal"
	"github.com/sproutswap/sproutswap-backend/pkg/config"
	"github.com/sproutswap/sproutswap-backend/pkg/db"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/migrate"
	"github.com/sproutswap/sproutswap-backend/pkg/paypal"
	"github.com/sproutswap/sproutswap-backend/pkg/redis"
)

const webhookIdempotencyTTL = 72 * time.Hour

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

	paypalClient, err := paypal.New(cfg.PayPal)
	if err != nil {
		logg.Error(context.Background(), "failed to create paypal client", err)
		os.Exit(1)
	}

	offersRepo := offers.NewRepository(dbClient.DB())
	transactionsRepo := settlement.NewRepository(dbClient.DB())
	listingsRepo := listings.NewRepository(dbClient.DB())
	settingsRepo := settings.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	notificationsService, err := notifications.NewService(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	settingsService, err := settings.NewService(settings.Params{
		Repo:                   settingsRepo,
		Cache:                  redisClient,
		Logger:                 logg,
		FallbackExpirationDays: cfg.Offers.ExpirationFallbackDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.Params{
		DB:            dbClient,
		Repo:          transactionsRepo,
		Listings:      listingsRepo,
		Settings:      settingsService,
		Notifications: notificationsService,
		Provider:      paypalClient,
		Offers:        offersRepo,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	offersService, err := offers.NewService(offers.Params{
		Repo:          offersRepo,
		Listings:      listingsRepo,
		Settings:      settingsService,
		Settlement:    settlementService,
		Notifications: notificationsService,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offers service", err)
		os.Exit(1)
	}

	webhookService, err := paypalwebhook.NewService(paypalwebhook.ServiceParams{
		Settlement: settlementService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paypal webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := paypalwebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "paypal_webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create paypal webhook guard", err)
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
			redisClient,
			offersService,
			settlementService,
			settingsService,
			notificationsService,
			paypalClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
