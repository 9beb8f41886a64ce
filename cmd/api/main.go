package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamcart-live/streamcart-backend/api/routes"
	"github.com/streamcart-live/streamcart-backend/internal/batches"
	"github.com/streamcart-live/streamcart-backend/internal/connect"
	"github.com/streamcart-live/streamcart-backend/internal/notifications"
	"github.com/streamcart-live/streamcart-backend/internal/orders"
	"github.com/streamcart-live/streamcart-backend/internal/payments"
	"github.com/streamcart-live/streamcart-backend/internal/sellers"
	"github.com/streamcart-live/streamcart-backend/internal/shows"
	stripewebhook "github.com/streamcart-live/streamcart-backend/internal/webhooks/stripe"
	"github.com/streamcart-live/streamcart-backend/pkg/config"
	"github.com/streamcart-live/streamcart-backend/pkg/db"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
	"github.com/streamcart-live/streamcart-backend/pkg/metrics"
	"github.com/streamcart-live/streamcart-backend/pkg/migrate"
	"github.com/streamcart-live/streamcart-backend/pkg/redis"
	"github.com/streamcart-live/streamcart-backend/pkg/stripe"
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	sellersRepo := sellers.NewRepository(dbClient.DB())
	showsRepo := shows.NewRepository(dbClient.DB())
	batchesRepo := batches.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	batchesService, err := batches.NewService(batches.ServiceParams{
		Logger:            logg,
		Repo:              batchesRepo,
		TransactionRunner: dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create batches service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	emitter, err := notifications.NewEmitter(notificationsRepo, sellersRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification emitter", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Logger:            logg,
		TransactionRunner: dbClient,
		Batches:           batchesService,
		Notifier:          emitter,
		Shows:             showsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	connectService, err := connect.NewService(connect.ServiceParams{
		Logger:  logg,
		Sellers: sellersRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create connect service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Logger:   logg,
		Payments: paymentsService,
		Connect:  connectService,
		Guard:    webhookGuard,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Stripe:         stripeClient,
			WebhookService: webhookService,
			WebhookMetrics: webhookMetrics,
			Orders:         ordersService,
			Batches:        batchesService,
			Notifications:  notificationsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
