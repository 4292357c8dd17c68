package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/renewals-backend/api/routes"
	"github.com/angelmondragon/renewals-backend/internal/gateway"
	"github.com/angelmondragon/renewals-backend/internal/orders"
	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/internal/subscriptions"
	"github.com/angelmondragon/renewals-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/renewals-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/renewals-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/renewals-backend/pkg/config"
	"github.com/angelmondragon/renewals-backend/pkg/db"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/angelmondragon/renewals-backend/pkg/metrics"
	"github.com/angelmondragon/renewals-backend/pkg/migrate"
	"github.com/angelmondragon/renewals-backend/pkg/outbox"
	"github.com/angelmondragon/renewals-backend/pkg/redis"
	pkgsquare "github.com/angelmondragon/renewals-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/renewals-backend/pkg/stripe"
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

	registry := prometheus.NewRegistry()
	retryMetrics := metrics.NewRetryMetrics(registry)

	ordersRepo := orders.NewRepository(dbClient.DB())
	subsRepo := subscriptions.NewRepository(dbClient.DB())
	rulesRepo := retry.NewRulesRepository(dbClient.DB())
	attemptsRepo := retry.NewAttemptsRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		TransactionRunner: dbClient,
		Outbox:            outboxService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	var chargers []gateway.Charger
	var stripeClient *pkgstripe.Client
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
		charger, err := gateway.NewStripeCharger(gateway.NewStripePaymentClient(stripeClient))
		if err != nil {
			logg.Error(context.Background(), "failed to build stripe charger", err)
			os.Exit(1)
		}
		chargers = append(chargers, charger)
	}

	var squareClient *pkgsquare.Client
	if cfg.Square.AccessToken != "" {
		squareClient, err = pkgsquare.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap square", err)
			os.Exit(1)
		}
		charger, err := gateway.NewSquareCharger(squareClient, cfg.Square.LocationID)
		if err != nil {
			logg.Error(context.Background(), "failed to build square charger", err)
			os.Exit(1)
		}
		chargers = append(chargers, charger)
	}

	retryService, err := retry.NewService(retry.ServiceParams{
		Logger:            logg,
		TransactionRunner: dbClient,
		Orders:            ordersRepo,
		Subscriptions:     subsRepo,
		Rules:             rulesRepo,
		Attempts:          attemptsRepo,
		Gateways:          gateway.NewRegistry(chargers...),
		Outbox:            outboxService,
		Metrics:           retryMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retry service", err)
		os.Exit(1)
	}

	rulesService, err := retry.NewRulesService(rulesRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create rules service", err)
		os.Exit(1)
	}

	routerParams := routes.RouterParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: registry,
		Orders:  ordersService,
		Retry:   retryService,
		Rules:   rulesService,
	}

	if cfg.FeatureFlags.RetryEnabled {
		if stripeClient != nil {
			stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
				Logger:        logg,
				Retry:         retryService,
				Orders:        ordersRepo,
				Subscriptions: subsRepo,
			})
			if err != nil {
				logg.Error(context.Background(), "failed to create stripe webhook service", err)
				os.Exit(1)
			}
			stripeGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Retry.WebhookIdempotencyTTL, "stripe-webhook")
			if err != nil {
				logg.Error(context.Background(), "failed to create stripe webhook guard", err)
				os.Exit(1)
			}
			routerParams.StripeClient = stripeClient
			routerParams.StripeWebhook = stripeWebhookService
			routerParams.StripeGuard = stripeGuard
		}

		if squareClient != nil {
			squareWebhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
				Logger:        logg,
				Retry:         retryService,
				Orders:        ordersRepo,
				Subscriptions: subsRepo,
			})
			if err != nil {
				logg.Error(context.Background(), "failed to create square webhook service", err)
				os.Exit(1)
			}
			squareGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Retry.WebhookIdempotencyTTL, "square-webhook")
			if err != nil {
				logg.Error(context.Background(), "failed to create square webhook guard", err)
				os.Exit(1)
			}
			routerParams.SquareClient = squareClient
			routerParams.SquareWebhook = squareWebhookService
			routerParams.SquareGuard = squareGuard
		}
	} else {
		logg.Warn(context.Background(), "retry subsystem disabled, webhook surface not mounted")
	}

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
		Addr:    addr,
		Handler: routes.NewRouter(routerParams),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
