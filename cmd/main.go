/**
 * @description
 * Entry point for the income-service.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/api"
	"github.com/autolytiq/income-service/internal/app"
	"github.com/autolytiq/income-service/internal/config"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/logger"
	"github.com/autolytiq/income-service/pkg/rabbitmq"
	"github.com/autolytiq/income-service/pkg/stripeclient"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.LogLevel))
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to parse database URL", zap.Error(err))
	}
	pgConfig.MaxConns = 20
	pgConfig.MinConns = 2
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()
	log.Info("database connection established")

	repository := store.NewRepository(dbpool)
	if cfg.AutoMigrate {
		applied, err := repository.Migrate(ctx)
		if err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		log.Info("database schema is up to date", zap.Int64s("applied_versions", applied))
	}

	var limiter app.RateLimiter = app.NoopRateLimiter{}
	if cfg.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn("invalid REDIS_URL; rate limiting disabled", zap.Error(err))
		} else {
			redisClient := redis.NewClient(redisOptions)
			defer redisClient.Close()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable at startup; requests fail open until it recovers", zap.Error(err))
			}
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		}
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger.Named(log, "events")}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger.Named(log, "events")); err == nil {
			publisher = producer
		} else {
			log.Warn("failed to connect to RabbitMQ, using fallback publisher", zap.Error(err))
		}
	}
	defer publisher.Close()

	var gateway app.PaymentGateway
	if stripe, err := stripeclient.NewClient(cfg.StripeSecretKey, cfg.StripeAPIBaseURL); err == nil {
		gateway = stripe
	} else {
		log.Warn("payment provider not configured; checkout is unavailable", zap.Error(err))
	}
	if cfg.StripeWebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is not set; webhooks will be rejected")
	}

	flags := config.NewFlagSource()

	entitlements := app.NewEntitlementService(repository, repository, repository, flags, publisher, cfg.EventsExchange, logger.Named(log, "entitlements"))
	checkout := app.NewCheckoutService(repository, entitlements, flags, gateway, publisher, app.CheckoutConfig{
		Exchange:   cfg.EventsExchange,
		Pricing:    cfg.Pricing(),
		AppURL:     cfg.AppURL,
		SessionTTL: cfg.CheckoutSessionTTL(),
	}, logger.Named(log, "checkout"))
	referrals := app.NewReferralService(repository, entitlements, flags, publisher, cfg.EventsExchange, cfg.ReferralRewardThreshold, logger.Named(log, "referrals"))
	incomeSvc := app.NewIncomeService(nil, logger.Named(log, "income"))
	reports := app.NewReportService(incomeSvc, entitlements, logger.Named(log, "reports"))
	jobs := app.NewJobs(repository, publisher, cfg.EventsExchange, cfg.CheckoutSessionTTL(), logger.Named(log, "jobs"))

	scheduler := app.NewScheduler(jobs, logger.Named(log, "scheduler"), cfg.PurchaseExpiryJobSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	handler := api.NewHandler(api.Services{
		Income:        incomeSvc,
		Entitlements:  entitlements,
		Checkout:      checkout,
		Referrals:     referrals,
		Reports:       reports,
		Expirer:       jobs,
		Flags:         flags,
		DB:            repository,
		Pricing:       cfg.Pricing(),
		WebhookSecret: cfg.StripeWebhookSecret,
	}, logger.Named(log, "api"))
	router := api.NewRouter(handler, api.RouterConfig{
		InternalAPIKey:          cfg.InternalAPIKey,
		AuthJWTSecret:           cfg.AuthJWTSecret,
		RateLimiter:             limiter,
		CheckoutRateLimitPerMin: cfg.CheckoutRateLimitPerMinute,
		ReferralRateLimitPerMin: cfg.ReferralRateLimitPerMinute,
		Logger:                  logger.Named(log, "ratelimit"),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-sigCh
	log.Info("shutdown signal received, gracefully shutting down")

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
}
