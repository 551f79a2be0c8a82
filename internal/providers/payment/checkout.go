package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"creditledger/internal/domain"
)

// CreditCheckout describes a one-time credit pack purchase.
type CreditCheckout struct {
	Pack       domain.CreditPack
	UserID     string
	Email      string
	ReturnURL  string
	SuccessURL string
	CancelURL  string
}

// SubscriptionCheckout describes a plan subscription purchase.
type SubscriptionCheckout struct {
	Plan            domain.PlanConfig
	Period          domain.BillingPeriod
	PriceID         string
	TrialPeriodDays int64
	UserID          string
	Email           string
	ReturnURL       string
	SuccessURL      string
	CancelURL       string
}

// CheckoutLink is where the browser is sent to pay.
type CheckoutLink struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCreditCheckout opens a payment-mode checkout session for a credit pack.
// The metadata carries everything the webhook needs to credit the user.
func (c *Client) CreateCreditCheckout(ctx context.Context, req CreditCheckout) (*CheckoutLink, error) {
	metadata := map[string]string{
		MetaCredits:   strconv.FormatInt(req.Pack.Credits, 10),
		MetaReturnURL: req.ReturnURL,
	}
	if req.UserID != "" {
		metadata[MetaUserID] = req.UserID
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(fmt.Sprintf("%d Credits", req.Pack.Credits)),
					Description: stripe.String(fmt.Sprintf("%d face swap credits for %s", req.Pack.Credits, PriceLabel(req.Pack.Price))),
				},
				UnitAmount: stripe.Int64(ToMinorUnits(req.Pack.Price)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   metadata,
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, c.wrap("create credit checkout", strconv.FormatInt(req.Pack.Credits, 10), err)
	}
	return &CheckoutLink{SessionID: sess.ID, URL: sess.URL}, nil
}

// CreateSubscriptionCheckout opens a subscription-mode checkout session with
// a trial. Plan metadata is set on both the session and the subscription so
// renewals can be credited without a lookup.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckout) (*CheckoutLink, error) {
	metadata := SubscriptionMetadata(req.Plan, req.Period, req.UserID)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
		Metadata:                 metadata,
	}
	if req.TrialPeriodDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialPeriodDays)
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, c.wrap("create subscription checkout", string(req.Plan.ID), err)
	}
	return &CheckoutLink{SessionID: sess.ID, URL: sess.URL}, nil
}

// SubscriptionMetadata is the metadata bag attached to subscription checkouts.
func SubscriptionMetadata(plan domain.PlanConfig, period domain.BillingPeriod, userID string) map[string]string {
	md := map[string]string{
		MetaPlanID:          string(plan.ID),
		MetaBillingPeriod:   string(period),
		MetaCreditsPerMonth: plan.Credits.MetadataValue(),
	}
	if userID != "" {
		md[MetaUserID] = userID
	}
	return md
}

// PriceLabel formats an amount for display in checkout descriptions.
func PriceLabel(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}
