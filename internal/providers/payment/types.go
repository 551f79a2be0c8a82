package payment

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event types consumed by the ledger.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventInvoicePaid            = "invoice.paid"
	EventInvoicePaymentFailed   = "invoice.payment_failed"
	CheckoutModePayment         = "payment"
	CheckoutModeSubscription    = "subscription"
	BillingReasonCycle          = "subscription_cycle"
	BillingReasonCreate         = "subscription_create"
	PaymentStatusPaid           = "paid"
	PaymentStatusNoPaymentNeed  = "no_payment_required"
	SessionStatusComplete       = "complete"
)

// Metadata keys written on checkout sessions and subscriptions.
const (
	MetaUserID          = "user_id"
	MetaCredits         = "credits"
	MetaReturnURL       = "return_url"
	MetaPlanID          = "plan_id"
	MetaBillingPeriod   = "billing_period"
	MetaCreditsPerMonth = "credits_per_month"
)

// Event is an authenticated provider event. Object holds the raw
// data.object payload.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Object  json.RawMessage `json:"object"`
}

// Decode unmarshals the event object into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Object, v)
}

// ExpandableID reads a provider reference that may arrive as a bare id or as
// an expanded object.
type ExpandableID string

func (x *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*x = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*x = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*x = ExpandableID(obj.ID)
	return nil
}

func (x ExpandableID) String() string { return string(x) }

// CheckoutSession is the subset of a checkout session the ledger reads.
type CheckoutSession struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Customer        ExpandableID      `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	PaymentIntent   ExpandableID      `json:"payment_intent"`
	Subscription    ExpandableID      `json:"subscription"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Email prefers the email the customer entered at checkout.
func (s CheckoutSession) Email() string {
	if e := strings.TrimSpace(s.CustomerDetails.Email); e != "" {
		return e
	}
	return strings.TrimSpace(s.CustomerEmail)
}

// Settled reports whether the session completed with nothing left to pay.
func (s CheckoutSession) Settled() bool {
	if s.Status != "" && s.Status != SessionStatusComplete {
		return false
	}
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusNoPaymentNeed
}

// Subscription is the subset of a subscription the ledger reads.
type Subscription struct {
	ID                 string            `json:"id"`
	Customer           ExpandableID      `json:"customer"`
	Status             string            `json:"status"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialEnd           int64             `json:"trial_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	EndedAt            int64             `json:"ended_at"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// Period returns the current billing period bounds in unix seconds. Newer API
// versions carry them on subscription items only.
func (s Subscription) Period() (start, end int64) {
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.CurrentPeriodStart != 0 || item.CurrentPeriodEnd != 0 {
			return item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
	}
	return s.CurrentPeriodStart, s.CurrentPeriodEnd
}

// Invoice is the subset of an invoice the ledger reads.
type Invoice struct {
	ID            string       `json:"id"`
	AmountPaid    int64        `json:"amount_paid"`
	Currency      string       `json:"currency"`
	BillingReason string       `json:"billing_reason"`
	Customer      ExpandableID `json:"customer"`
	CustomerEmail string       `json:"customer_email"`
	Subscription  ExpandableID `json:"subscription"`
	PaymentIntent ExpandableID `json:"payment_intent"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID      `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID resolves the owning subscription across API versions.
func (i Invoice) SubscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Subscription != "" {
		return i.Parent.SubscriptionDetails.Subscription.String()
	}
	return i.Subscription.String()
}

// SubscriptionMetadata is the subscription metadata snapshot carried by the
// invoice, if any.
func (i Invoice) SubscriptionMetadata() map[string]string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Metadata
	}
	return nil
}
