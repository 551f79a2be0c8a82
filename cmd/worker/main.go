package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"creditledger/internal/adapter/repo"
	"creditledger/internal/infra"
	"creditledger/internal/providers/payment"
	"creditledger/internal/reconcile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	stripeClient, err := payment.NewClient(payment.Options{
		SecretKey:  cfg.StripeSecretKey,
		APIBaseURL: cfg.StripeAPIBaseURL,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure stripe client")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(registry)

	metricsServer := newMetricsServer(cfg.WorkerMetricsAddr, metrics)
	go func() {
		logger.Info().Str("addr", metricsServer.Addr).Msg("worker: metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	runner := infra.NewSQLRunner(pool, logger)
	svc := reconcile.NewService(reconcile.Deps{
		Ledger:        repo.NewCreditLedger(runner),
		Subscriptions: repo.NewSubscriptionRepository(runner),
		Events:        repo.NewEventLog(runner),
		Provider:      stripeClient,
		Logger:        logger,
		Metrics:       metrics,
	})

	worker := reconcile.NewWorker(svc, reconcile.WorkerOptions{
		PollInterval: cfg.WorkerPollInterval,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		StaleAfter:   cfg.WorkerStaleAfter,
	})
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func newMetricsServer(addr string, metrics *infra.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
