package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"creditledger/internal/http/handlers"
	"creditledger/internal/middleware"
)

// Options configure cross-cutting middleware.
type Options struct {
	// Limiter backs per-route rate limits. Nil uses an in-process counter.
	Limiter         middleware.Counter
	RateLimitPerMin int
	JWTAudience     string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = middleware.NewMemoryCounter()
	}
	perMin := opts.RateLimitPerMin
	if perMin <= 0 {
		perMin = 30
	}
	audience := opts.JWTAudience
	if audience == "" {
		audience = middleware.DefaultAudience
	}
	secret := app.Config.SupabaseJWTSecret
	limit := func(route string) func(http.Handler) http.Handler {
		return middleware.RateLimit(limiter, route, perMin, time.Minute, app.Metrics.RecordRateLimited)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(app.Config.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/metrics", app.PrometheusMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/stripe/webhook", app.StripeWebhook)

		r.Get("/plans", app.ListPlans)
		r.Get("/billing/estimate", app.BillingEstimate)
		r.Get("/billing/storage", app.StorageStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuthJWT(secret, audience))
			r.With(limit("verify")).Post("/stripe/verify", app.VerifyCheckout)
			r.With(limit("checkout")).Post("/stripe/checkout", app.CreditCheckout)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(secret, audience))
			r.With(limit("subscribe")).Post("/stripe/subscribe", app.Subscribe)
			r.Get("/me/credits", app.MyCredits)
		})
	})

	return r
}
