package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/internal/plans"
	"creditledger/internal/providers/payment"
)

type creditCheckoutRequest struct {
	Credits   int64           `json:"credits" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
	ReturnURL string          `json:"return_url" validate:"max=2048"`
}

type subscribeRequest struct {
	PlanID        string `json:"plan_id" validate:"required"`
	BillingPeriod string `json:"billing_period" validate:"required,oneof=monthly yearly"`
	ReturnURL     string `json:"return_url" validate:"max=2048"`
}

// CreditCheckout opens a checkout for a one-time credit pack. The user id is
// taken from the token only; anonymous purchases are recorded unattributed.
func (a *App) CreditCheckout(w http.ResponseWriter, r *http.Request) {
	var req creditCheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	pack, err := plans.LookupPack(req.Credits, req.Price)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_pack", err.Error())
		return
	}
	returnURL, ok := a.safeReturnURL(req.ReturnURL)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "return_url must be on this site")
		return
	}

	link, err := a.Checkout.CreateCreditCheckout(r.Context(), payment.CreditCheckout{
		Pack:       pack,
		UserID:     a.currentUserID(r),
		Email:      a.currentEmail(r),
		ReturnURL:  returnURL,
		SuccessURL: a.successURL(returnURL, ""),
		CancelURL:  a.cancelURL(returnURL),
	})
	if err != nil {
		a.log(r).Error().Err(err).Int64("credits", pack.Credits).Msg("create credit checkout failed")
		a.error(w, http.StatusBadGateway, "provider_error", "failed to create checkout session")
		return
	}
	a.json(w, http.StatusOK, link)
}

// Subscribe opens a subscription checkout with the configured trial.
func (a *App) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req subscribeRequest
	if !a.decode(w, r, &req) {
		return
	}
	plan, err := plans.Lookup(domain.PlanID(req.PlanID))
	if err != nil || !plans.Paid(plan.ID) {
		a.error(w, http.StatusBadRequest, "invalid_plan", "plan must be basic, pro or ultra")
		return
	}
	period, err := domain.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	priceID, ok := a.Config.StripePrice(plan.ID, period)
	if !ok {
		a.log(r).Error().Str("plan_id", string(plan.ID)).Str("billing_period", string(period)).Msg("missing price id")
		a.error(w, http.StatusInternalServerError, "not_configured", "subscription plan not configured")
		return
	}
	returnURL, ok := a.safeReturnURL(req.ReturnURL)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "return_url must be on this site")
		return
	}

	link, err := a.Checkout.CreateSubscriptionCheckout(r.Context(), payment.SubscriptionCheckout{
		Plan:            plan,
		Period:          period,
		PriceID:         priceID,
		TrialPeriodDays: int64(a.Config.TrialPeriodDays),
		UserID:          userID,
		Email:           a.currentEmail(r),
		ReturnURL:       returnURL,
		SuccessURL:      a.successURL(returnURL, "subscription"),
		CancelURL:       a.cancelURL(returnURL),
	})
	if err != nil {
		a.log(r).Error().Err(err).Str("plan_id", string(plan.ID)).Msg("create subscription checkout failed")
		a.error(w, http.StatusBadGateway, "provider_error", "failed to create checkout session")
		return
	}
	a.json(w, http.StatusOK, link)
}

// safeReturnURL accepts a site-relative path or an absolute URL on the
// public base URL's host.
func (a *App) safeReturnURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return raw, true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(a.Config.PublicBaseURL)
	if err != nil {
		return "", false
	}
	if u.Scheme != base.Scheme || u.Host != base.Host {
		return "", false
	}
	return raw, true
}

// The session id placeholder is filled in by the provider and must stay
// unescaped.
func (a *App) successURL(returnURL, kind string) string {
	s := a.Config.PublicBaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
	if kind != "" {
		s += "&type=" + kind
	}
	return s + "&return=" + url.QueryEscape(returnURL)
}

func (a *App) cancelURL(returnURL string) string {
	return a.Config.PublicBaseURL + "/payment/cancelled?return=" + url.QueryEscape(returnURL)
}
