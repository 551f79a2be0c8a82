// Package payment adapts the Stripe API to the ledger: webhook authenticity,
// authoritative retrieves and checkout session creation.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"creditledger/internal/domain"
)

var (
	// ErrMissingSignature is returned when the signature header is absent.
	ErrMissingSignature = errors.New("payment: missing webhook signature")
	// ErrInvalidSignature is returned when the payload fails authentication.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrMissingAPIKey indicates the client was configured without a secret key.
	ErrMissingAPIKey = errors.New("payment: secret key is required")
)

// Options configures the Stripe client.
type Options struct {
	SecretKey     string
	WebhookSecret string
	// APIBaseURL overrides the API host, mostly for tests.
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client talks to Stripe. Retrieved objects are decoded from the raw
// response into the same local types the webhook path uses.
type Client struct {
	api           *client.API
	webhookSecret string
	logger        zerolog.Logger
}

// NewClient builds a Client.
func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.SecretKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("provider", "stripe").Logger()
	}

	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(2),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if base := strings.TrimSpace(opts.APIBaseURL); base != "" {
		cfg.URL = stripe.String(base)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	api := client.New(key, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{api: api, webhookSecret: opts.WebhookSecret, logger: logger}, nil
}

// ParseWebhook authenticates payload against the signature header and
// returns the event.
func (c *Client) ParseWebhook(payload []byte, signature string) (Event, error) {
	return ParseWebhook(payload, signature, c.webhookSecret)
}

// ParseWebhook authenticates a webhook delivery with secret.
func ParseWebhook(payload []byte, signature, secret string) (Event, error) {
	if strings.TrimSpace(signature) == "" {
		return Event{}, ErrMissingSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := Event{ID: ev.ID, Type: string(ev.Type), Created: ev.Created}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}

// CheckoutSession retrieves a checkout session by id.
func (c *Client) CheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, c.wrap("retrieve checkout session", id, err)
	}
	var out CheckoutSession
	if err := decodeResponse(sess.LastResponse, &out); err != nil {
		return nil, fmt.Errorf("decode checkout session %s: %w", id, err)
	}
	return &out, nil
}

// Subscription retrieves a subscription by id.
func (c *Client) Subscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, c.wrap("retrieve subscription", id, err)
	}
	var out Subscription
	if err := decodeResponse(sub.LastResponse, &out); err != nil {
		return nil, fmt.Errorf("decode subscription %s: %w", id, err)
	}
	return &out, nil
}

// CustomerEmail returns the email on file for a customer.
func (c *Client) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return "", c.wrap("retrieve customer", customerID, err)
	}
	var out struct {
		Email string `json:"email"`
	}
	if err := decodeResponse(cust.LastResponse, &out); err != nil {
		return "", fmt.Errorf("decode customer %s: %w", customerID, err)
	}
	return out.Email, nil
}

func (c *Client) wrap(op, id string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	c.logger.Warn().Err(err).Str("op", op).Str("id", id).Msg("stripe request failed")
	return fmt.Errorf("%s %s: %w: %v", op, id, domain.ErrProviderFailure, err)
}

func decodeResponse(resp *stripe.APIResponse, v any) error {
	if resp == nil || len(resp.RawJSON) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(resp.RawJSON, v)
}
