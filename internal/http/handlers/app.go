package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/middleware"
	"creditledger/internal/providers/payment"
	"creditledger/internal/reconcile"
)

const maxJSONBody = 64 << 10

// Reconciler applies billing events to the ledger.
type Reconciler interface {
	HandleWebhook(ctx context.Context, ev payment.Event) (reconcile.Outcome, error)
	VerifyCheckout(ctx context.Context, sessionID string) (reconcile.Outcome, error)
}

// CheckoutCreator opens hosted checkout sessions.
type CheckoutCreator interface {
	CreateCreditCheckout(ctx context.Context, req payment.CreditCheckout) (*payment.CheckoutLink, error)
	CreateSubscriptionCheckout(ctx context.Context, req payment.SubscriptionCheckout) (*payment.CheckoutLink, error)
}

// WebhookParser authenticates webhook deliveries.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payment.Event, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP handlers.
type Deps struct {
	Reconciler    Reconciler
	Checkout      CheckoutCreator
	Webhooks      WebhookParser
	Ledger        domain.CreditLedger
	Subscriptions domain.SubscriptionRepository
	Metrics       *infra.Metrics
	DB            Pinger
}

type App struct {
	Config        *infra.Config
	Logger        zerolog.Logger
	Reconciler    Reconciler
	Checkout      CheckoutCreator
	Webhooks      WebhookParser
	Ledger        domain.CreditLedger
	Subscriptions domain.SubscriptionRepository
	Metrics       *infra.Metrics
	DB            Pinger

	validate *validator.Validate
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, d Deps) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Reconciler:    d.Reconciler,
		Checkout:      d.Checkout,
		Webhooks:      d.Webhooks,
		Ledger:        d.Ledger,
		Subscriptions: d.Subscriptions,
		Metrics:       d.Metrics,
		DB:            d.DB,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorResponse{Error: errCode, Message: msg})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) currentEmail(r *http.Request) string {
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		return c.Email
	}
	return ""
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return false
		}
		if !errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return false
		}
	}
	if err := a.validate.Struct(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid " + fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid payload"
}
