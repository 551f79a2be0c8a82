package handlers

import (
	"errors"
	"net/http"

	"creditledger/internal/domain"
	"creditledger/internal/reconcile"
)

type verifyRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

type verifyResponse struct {
	Success        bool   `json:"success"`
	Mode           string `json:"mode"`
	Credits        int64  `json:"credits"`
	Balance        *int64 `json:"balance,omitempty"`
	Email          string `json:"email,omitempty"`
	AlreadyApplied bool   `json:"already_applied"`
}

// VerifyCheckout is called by the client after returning from checkout. It
// credits the session if the webhook has not done so yet.
func (a *App) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !a.decode(w, r, &req) {
		return
	}
	out, err := a.Reconciler.VerifyCheckout(r.Context(), req.SessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "checkout session not found")
		return
	case errors.Is(err, domain.ErrPaymentIncomplete):
		a.error(w, http.StatusBadRequest, "payment_incomplete", "payment not completed")
		return
	case errors.Is(err, domain.ErrInvalidEvent):
		a.error(w, http.StatusBadRequest, "invalid_session", "checkout session cannot be credited")
		return
	case errors.Is(err, domain.ErrProviderFailure):
		a.log(r).Error().Err(err).Str("session_id", req.SessionID).Msg("verify checkout provider error")
		a.error(w, http.StatusBadGateway, "provider_error", "failed to verify session")
		return
	case err != nil:
		a.log(r).Error().Err(err).Str("session_id", req.SessionID).Msg("verify checkout failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to verify session")
		return
	}

	resp := verifyResponse{
		Success:        true,
		Mode:           out.Mode,
		Credits:        out.CreditsGranted,
		Email:          out.Email,
		AlreadyApplied: out.Action == reconcile.ActionDuplicate,
	}
	if uid := a.currentUserID(r); uid != "" && uid == out.UserID {
		resp.Balance = out.Balance
	}
	a.json(w, http.StatusOK, resp)
}
