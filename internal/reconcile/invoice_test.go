package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditledger/internal/domain"
	"creditledger/internal/providers/payment"
)

func renewal(id string, amount int64, reason string, md map[string]string) map[string]any {
	return map[string]any{
		"id":             id,
		"amount_paid":    amount,
		"currency":       "usd",
		"billing_reason": reason,
		"customer":       "cus_1",
		"customer_email": "sub@example.com",
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": "sub_1",
				"metadata":     md,
			},
		},
	}
}

func TestInvoiceRenewalTopsUp(t *testing.T) {
	h := newHarness(t)
	h.ledger.balances["user-1"] = 200
	inv := renewal("in_cycle", 1399, payment.BillingReasonCycle, map[string]string{"plan_id": "pro", "user_id": "user-1"})

	out, err := h.svc.HandleWebhook(context.Background(), event(t, "evt_in", payment.EventInvoicePaid, inv))
	require.NoError(t, err)
	assert.Equal(t, ActionCredited, out.Action)
	assert.Equal(t, int64(1600), out.CreditsGranted)
	assert.Equal(t, int64(1800), h.ledger.balance("user-1"))

	rec := h.ledger.rows["in_cycle"]
	assert.Equal(t, domain.GrantRenewal, rec.Kind)
	assert.Equal(t, "13.99", rec.AmountPaid.StringFixed(2))
	assert.Equal(t, "sub_1", rec.Metadata["subscription_id"])
	assert.Zero(t, h.provider.subCalls)
}

func TestInvoiceWithoutMetadataLoadsSubscription(t *testing.T) {
	h := newHarness(t)
	h.provider.subs["sub_legacy"] = &payment.Subscription{
		ID:       "sub_legacy",
		Metadata: map[string]string{"plan_id": "basic", "user_id": "user-2"},
	}
	inv := map[string]any{
		"id":             "in_legacy",
		"amount_paid":    799,
		"currency":       "usd",
		"billing_reason": payment.BillingReasonCycle,
		"subscription":   "sub_legacy",
	}

	out, err := h.svc.HandleWebhook(context.Background(), event(t, "evt_legacy", payment.EventInvoicePaid, inv))
	require.NoError(t, err)
	assert.Equal(t, ActionCredited, out.Action)
	assert.Equal(t, int64(320), h.ledger.balance("user-2"))
	assert.Equal(t, 1, h.provider.subCalls)
}

func TestInvoiceSubscriptionLookupFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	inv := map[string]any{
		"id":             "in_missing",
		"amount_paid":    799,
		"billing_reason": payment.BillingReasonCycle,
		"subscription":   "sub_gone",
	}

	_, err := h.svc.HandleWebhook(context.Background(), event(t, "evt_missing", payment.EventInvoicePaid, inv))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidEvent)
	assert.Equal(t, domain.EventFailed, h.events.status("evt_missing"))
}

func TestInvoicesThatGrantNothing(t *testing.T) {
	md := map[string]string{"plan_id": "pro", "user_id": "user-1"}
	cases := []struct {
		name   string
		inv    map[string]any
		reason string
	}{
		{"trial invoice", renewal("in_trial", 0, payment.BillingReasonCreate, md), "zero_amount"},
		{"zero cycle invoice", renewal("in_zero", 0, payment.BillingReasonCycle, md), "zero_amount"},
		{"first invoice", renewal("in_first", 1399, payment.BillingReasonCreate, md), "initial_invoice"},
		{"proration", renewal("in_prorate", 600, "subscription_update", md), "unclassified_billing_reason"},
		{"manual invoice", renewal("in_manual", 1000, "manual", md), "unclassified_billing_reason"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.ledger.balances["user-1"] = 5

			// A provider resend arrives under a new event id for the same invoice.
			for _, id := range []string{"evt_" + tc.name, "evt_resend_" + tc.name} {
				out, err := h.svc.HandleWebhook(context.Background(), event(t, id, payment.EventInvoicePaid, tc.inv))
				require.NoError(t, err)
				assert.Equal(t, ActionSkipped, out.Action)
				assert.Equal(t, tc.reason, out.Reason)
				assert.Empty(t, h.ledger.rows)
				assert.Equal(t, int64(5), h.ledger.balance("user-1"))
			}

			out, err := h.svc.Replay(context.Background(), h.events.rows["evt_"+tc.name])
			require.NoError(t, err)
			assert.Equal(t, ActionSkipped, out.Action)
			assert.Empty(t, h.ledger.rows)
			assert.Equal(t, int64(5), h.ledger.balance("user-1"))
		})
	}
}

func TestInvoiceUnknownPlanRejected(t *testing.T) {
	h := newHarness(t)
	inv := renewal("in_bad", 999, payment.BillingReasonCycle, map[string]string{"plan_id": "enterprise", "user_id": "user-1"})

	_, err := h.svc.HandleWebhook(context.Background(), event(t, "evt_bad", payment.EventInvoicePaid, inv))
	require.ErrorIs(t, err, domain.ErrInvalidEvent)
	require.ErrorIs(t, err, domain.ErrUnknownPlan)
	assert.Empty(t, h.ledger.rows)
}

func TestInvoicePaymentFailedIsLoggedOnly(t *testing.T) {
	h := newHarness(t)
	inv := renewal("in_declined", 0, payment.BillingReasonCycle, nil)

	out, err := h.svc.HandleWebhook(context.Background(), event(t, "evt_declined", payment.EventInvoicePaymentFailed, inv))
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, out.Action)
	assert.Equal(t, "payment_failed", out.Reason)
}
