package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedEvent(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return signed.Header
}

func TestParseWebhookAcceptsValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1700000000,"data":{"object":{"id":"cs_1","mode":"payment"}}}`)
	ev, err := ParseWebhook(payload, signedEvent(t, payload, testWebhookSecret), testWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)

	var sess CheckoutSession
	require.NoError(t, ev.Decode(&sess))
	assert.Equal(t, "cs_1", sess.ID)
	assert.Equal(t, CheckoutModePayment, sess.Mode)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)
	_, err := ParseWebhook(payload, signedEvent(t, payload, "whsec_other"), testWebhookSecret)
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	_, err = ParseWebhook(payload, "", testWebhookSecret)
	assert.True(t, errors.Is(err, ErrMissingSignature))
}

func TestParseWebhookRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"amount_paid":0}}}`)
	header := signedEvent(t, payload, testWebhookSecret)
	tampered := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"amount_paid":999}}}`)
	_, err := ParseWebhook(tampered, header, testWebhookSecret)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}
