package main

import (
	"net/http"

	"github.com/rs/zerolog"

	"creditledger/internal/adapter/repo"
	"creditledger/internal/http/handlers"
	httpapi "creditledger/internal/http/httpapi"
	"creditledger/internal/infra"
	"creditledger/internal/middleware"
	"creditledger/internal/providers/payment"
	"creditledger/internal/reconcile"
)

type apiDeps struct {
	Config  *infra.Config
	Logger  zerolog.Logger
	DB      handlers.Pinger
	Runner  infra.TxRunner
	Stripe  *payment.Client
	Metrics *infra.Metrics
	Limiter middleware.Counter
}

func newRouter(d apiDeps) http.Handler {
	ledger := repo.NewCreditLedger(d.Runner)
	subs := repo.NewSubscriptionRepository(d.Runner)

	svc := reconcile.NewService(reconcile.Deps{
		Ledger:        ledger,
		Subscriptions: subs,
		Events:        repo.NewEventLog(d.Runner),
		Provider:      d.Stripe,
		Logger:        d.Logger,
		Metrics:       d.Metrics,
	})

	app := handlers.NewApp(d.Config, d.Logger, handlers.Deps{
		Reconciler:    svc,
		Checkout:      d.Stripe,
		Webhooks:      d.Stripe,
		Ledger:        ledger,
		Subscriptions: subs,
		Metrics:       d.Metrics,
		DB:            d.DB,
	})
	return httpapi.NewRouter(app, httpapi.Options{
		Limiter:         d.Limiter,
		RateLimitPerMin: d.Config.RateLimitPerMin,
	})
}
