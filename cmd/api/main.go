package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"creditledger/internal/infra"
	"creditledger/internal/middleware"
	"creditledger/internal/providers/payment"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if err := cfg.RequireStripe(); err != nil {
		logger.Fatal().Err(err).Msg("stripe is not configured")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if cfg.RunMigrations {
		if err := infra.Migrate(ctx, dbpool); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(registry)

	var limiter middleware.Counter
	rdb, err := infra.NewRedisClient(ctx, cfg)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("redis unavailable, rate limits are per process")
	case rdb != nil:
		defer rdb.Close()
		limiter = middleware.NewRedisCounter(rdb, "creditledger:ratelimit")
	}

	stripeClient, err := payment.NewClient(payment.Options{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		APIBaseURL:    cfg.StripeAPIBaseURL,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure stripe client")
	}

	router := newRouter(apiDeps{
		Config:  cfg,
		Logger:  logger,
		DB:      dbpool,
		Runner:  infra.NewSQLRunner(dbpool, logger),
		Stripe:  stripeClient,
		Metrics: metrics,
		Limiter: limiter,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
