package handlers

import (
	"errors"
	"net/http"
	"time"

	"creditledger/internal/domain"
)

type subscriptionDTO struct {
	SubscriptionID    string                    `json:"subscription_id"`
	PlanID            domain.PlanID             `json:"plan_id"`
	BillingPeriod     domain.BillingPeriod      `json:"billing_period"`
	Status            domain.SubscriptionStatus `json:"status"`
	Active            bool                      `json:"active"`
	CreditsPerMonth   string                    `json:"credits_per_month"`
	StorageIncludedMB int64                     `json:"storage_included_mb"`
	CurrentPeriodEnd  *time.Time                `json:"current_period_end,omitempty"`
	TrialEnd          *time.Time                `json:"trial_end,omitempty"`
	CancelAtPeriodEnd bool                      `json:"cancel_at_period_end"`
}

// MyCredits returns the caller's balance and latest subscription.
func (a *App) MyCredits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	bal, err := a.Ledger.GetBalance(r.Context(), userID)
	if err != nil {
		a.log(r).Error().Err(err).Str("user_id", userID).Msg("load balance failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}

	var sub *subscriptionDTO
	rec, err := a.Subscriptions.LatestForUser(r.Context(), userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		a.log(r).Error().Err(err).Str("user_id", userID).Msg("load subscription failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load subscription")
		return
	default:
		sub = &subscriptionDTO{
			SubscriptionID:    rec.SubscriptionID,
			PlanID:            rec.PlanID,
			BillingPeriod:     rec.BillingPeriod,
			Status:            rec.Status,
			Active:            rec.Status.Entitling(),
			CreditsPerMonth:   rec.Credits.String(),
			StorageIncludedMB: rec.StorageIncludedMB,
			CurrentPeriodEnd:  rec.CurrentPeriodEnd,
			TrialEnd:          rec.TrialEnd,
			CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
		}
	}
	a.json(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"balance":      bal.Balance,
		"subscription": sub,
	})
}
