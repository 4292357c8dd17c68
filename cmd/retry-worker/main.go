package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/renewals-backend/internal/cron"
	"github.com/angelmondragon/renewals-backend/internal/gateway"
	"github.com/angelmondragon/renewals-backend/internal/orders"
	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/internal/subscriptions"
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

const lockKeyFormat = "renewals:retry-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "retry-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "retry-worker"

	logg = logger.New(logger.Options{
		ServiceName: "retry-worker",
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

	retryMetrics := metrics.NewRetryMetrics(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepository(dbClient.DB())
	subsRepo := subscriptions.NewRepository(dbClient.DB())
	rulesRepo := retry.NewRulesRepository(dbClient.DB())
	attemptsRepo := retry.NewAttemptsRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	var chargers []gateway.Charger
	var stripeSubs subscriptions.StripeSubscriptionClient
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
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
		stripeSubs = subscriptions.NewStripeSubscriptionClient(stripeClient)
	}

	var squareSubs subscriptions.SquareSubscriptionClient
	if cfg.Square.AccessToken != "" {
		squareClient, err := pkgsquare.NewClient(context.Background(), cfg.Square, logg)
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
		squareSubs = squareClient
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

	registry := cron.NewRegistry()

	if cfg.FeatureFlags.RetryEnabled {
		dueJob, err := cron.NewRetryDueJob(cron.RetryDueJobParams{
			Logger:    logg,
			DueReader: ordersRepo,
			Retry:     retryService,
			BatchSize: cfg.Retry.DueBatchSize,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create due-retry job", err)
			os.Exit(1)
		}
		registry.Register(dueJob)
	} else {
		logg.Warn(context.Background(), "retry subsystem disabled, due-retry job not registered")
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	registry.Register(retentionJob)

	if stripeSubs != nil || squareSubs != nil {
		reconcileJob, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
			Logger:        logg,
			Subscriptions: subsRepo,
			MethodReader:  ordersRepo,
			Stripe:        stripeSubs,
			Square:        squareSubs,
			StatusSink:    retryService,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create subscription reconcile job", err)
			os.Exit(1)
		}
		registry.Register(reconcileJob)
	} else {
		logg.Warn(context.Background(), "no gateway clients configured, skipping subscription reconcile job")
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Retry.WorkerInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting retry worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "retry worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "retry worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
