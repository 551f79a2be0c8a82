package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stripe/stripe-go/v82/webhook"

	"creditledger/internal/domain"
	"creditledger/internal/reconcile"
)

var webhookPayload = []byte(`{"id":"evt_h1","object":"event","type":"checkout.session.completed","created":1700000000,"data":{"object":{"id":"cs_h1","mode":"payment"}}}`)

func deliver(t *testing.T, ta *testApp, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", bytes.NewReader(payload))
	if secret != "" {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
		req.Header.Set("Stripe-Signature", signed.Header)
	}
	rec := httptest.NewRecorder()
	ta.StripeWebhook(rec, req)
	return rec
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	for name, secret := range map[string]string{"wrong secret": "whsec_other", "missing header": ""} {
		t.Run(name, func(t *testing.T) {
			ta := newTestApp(t)
			rec := deliver(t, ta, webhookPayload, secret)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(ta.rec.events) != 0 {
				t.Fatalf("reconciler called for unauthenticated delivery")
			}
			if got := testutil.ToFloat64(ta.metrics.SignatureFailures); got != 1 {
				t.Fatalf("signature failures = %v", got)
			}
		})
	}
}

func TestStripeWebhookOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		out    reconcile.Outcome
		err    error
		status int
		action string
	}{
		{"credited", reconcile.Outcome{Action: reconcile.ActionCredited}, nil, http.StatusOK, "credited"},
		{"duplicate", reconcile.Outcome{Action: reconcile.ActionDuplicate}, nil, http.StatusOK, "duplicate"},
		{"persistence failure is acknowledged", reconcile.Outcome{}, errors.New("db down"), http.StatusOK, "failed"},
		{"validation failure", reconcile.Outcome{}, fmt.Errorf("%w: unknown plan", domain.ErrInvalidEvent), http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			ta.rec.out, ta.rec.err = tc.out, tc.err

			rec := deliver(t, ta, webhookPayload, testWebhookSecret)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if len(ta.rec.events) != 1 || ta.rec.events[0].ID != "evt_h1" {
				t.Fatalf("events = %+v", ta.rec.events)
			}
			body := decodeBody(t, rec)
			if tc.status == http.StatusOK {
				if body["received"] != true || body["action"] != tc.action {
					t.Fatalf("body = %v", body)
				}
			} else if body["error"] != "invalid_event" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}
