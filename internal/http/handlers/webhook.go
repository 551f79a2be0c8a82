package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"creditledger/internal/domain"
	"creditledger/internal/reconcile"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Received bool             `json:"received"`
	Action   reconcile.Action `json:"action,omitempty"`
}

// StripeWebhook authenticates and reconciles one provider event. Only a bad
// signature or an invalid event is refused. A failure to persist after
// authentication is acknowledged, since the event log lets the worker
// replay it.
func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook body too large")
		return
	}
	ev, err := a.Webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		a.Metrics.RecordSignatureFailure()
		a.log(r).Warn().Err(err).Msg("webhook signature verification failed")
		a.error(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if a.Config != nil && a.Config.WebhookProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.WebhookProcessTimeout)
		defer cancel()
	}
	out, err := a.Reconciler.HandleWebhook(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		a.error(w, http.StatusBadRequest, "invalid_event", err.Error())
	case err != nil:
		a.log(r).Error().Err(err).Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("webhook acknowledged without applying")
		a.json(w, http.StatusOK, webhookResponse{Received: true, Action: reconcile.ActionFailed})
	default:
		a.json(w, http.StatusOK, webhookResponse{Received: true, Action: out.Action})
	}
}
