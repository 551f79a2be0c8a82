package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/middleware"
	"creditledger/internal/providers/payment"
	"creditledger/internal/reconcile"
)

const (
	testJWTSecret     = "jwt-secret"
	testWebhookSecret = "whsec_handlers"
)

type fakeReconciler struct {
	out       reconcile.Outcome
	err       error
	events    []payment.Event
	sessionID string
}

func (f *fakeReconciler) HandleWebhook(_ context.Context, ev payment.Event) (reconcile.Outcome, error) {
	f.events = append(f.events, ev)
	return f.out, f.err
}

func (f *fakeReconciler) VerifyCheckout(_ context.Context, id string) (reconcile.Outcome, error) {
	f.sessionID = id
	return f.out, f.err
}

type fakeCheckout struct {
	err    error
	credit *payment.CreditCheckout
	sub    *payment.SubscriptionCheckout
}

func (f *fakeCheckout) CreateCreditCheckout(_ context.Context, req payment.CreditCheckout) (*payment.CheckoutLink, error) {
	f.credit = &req
	if f.err != nil {
		return nil, f.err
	}
	return &payment.CheckoutLink{SessionID: "cs_new", URL: "https://checkout.example.com/cs_new"}, nil
}

func (f *fakeCheckout) CreateSubscriptionCheckout(_ context.Context, req payment.SubscriptionCheckout) (*payment.CheckoutLink, error) {
	f.sub = &req
	if f.err != nil {
		return nil, f.err
	}
	return &payment.CheckoutLink{SessionID: "cs_sub", URL: "https://checkout.example.com/cs_sub"}, nil
}

type secretParser string

func (s secretParser) ParseWebhook(payload []byte, sig string) (payment.Event, error) {
	return payment.ParseWebhook(payload, sig, string(s))
}

type stubLedger struct {
	domain.CreditLedger
	balances map[string]int64
}

func (l stubLedger) GetBalance(_ context.Context, userID string) (*domain.UserCreditBalance, error) {
	return &domain.UserCreditBalance{UserID: userID, Balance: l.balances[userID]}, nil
}

type stubSubs struct {
	domain.SubscriptionRepository
	byUser map[string]*domain.SubscriptionRecord
}

func (s stubSubs) LatestForUser(_ context.Context, userID string) (*domain.SubscriptionRecord, error) {
	if rec, ok := s.byUser[userID]; ok {
		return rec, nil
	}
	return nil, domain.ErrNotFound
}

type testApp struct {
	*App
	rec      *fakeReconciler
	checkout *fakeCheckout
	metrics  *infra.Metrics
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := &infra.Config{
		PublicBaseURL:         "https://app.example.com",
		TrialPeriodDays:       7,
		WebhookProcessTimeout: 5 * time.Second,
		StripePrices: map[domain.PlanID]map[domain.BillingPeriod]string{
			domain.PlanBasic: {domain.PeriodMonthly: "price_basic_monthly"},
		},
	}
	ta := &testApp{
		rec:      &fakeReconciler{},
		checkout: &fakeCheckout{},
		metrics:  infra.NewMetrics(prometheus.NewRegistry()),
	}
	ta.App = NewApp(cfg, zerolog.Nop(), Deps{
		Reconciler:    ta.rec,
		Checkout:      ta.checkout,
		Webhooks:      secretParser(testWebhookSecret),
		Ledger:        stubLedger{balances: map[string]int64{"user-1": 420}},
		Subscriptions: stubSubs{byUser: map[string]*domain.SubscriptionRecord{}},
		Metrics:       ta.metrics,
	})
	return ta
}

func bearer(t *testing.T, userID, email string) string {
	t.Helper()
	tok, err := middleware.SignJWT(testJWTSecret, middleware.TokenClaims{
		Sub:      userID,
		Email:    email,
		Exp:      time.Now().Add(time.Hour).Unix(),
		Audience: middleware.DefaultAudience,
	})
	if err != nil {
		t.Fatalf("SignJWT() error: %v", err)
	}
	return "Bearer " + tok
}

func withAuth(required bool, h http.HandlerFunc) http.Handler {
	if required {
		return middleware.AuthJWT(testJWTSecret, middleware.DefaultAudience)(h)
	}
	return middleware.OptionalAuthJWT(testJWTSecret, middleware.DefaultAudience)(h)
}

func postJSON(t *testing.T, h http.Handler, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not json: %q", rec.Body.String())
	}
	return out
}
