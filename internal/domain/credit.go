package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserCreditBalance is the spendable credit balance of one user.
type UserCreditBalance struct {
	UserID    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantKind classifies why credits were granted.
type GrantKind string

const (
	GrantPurchase             GrantKind = "credit_purchase"
	GrantSubscriptionCheckout GrantKind = "subscription_checkout"
	GrantRenewal              GrantKind = "subscription_renewal"
	GrantManual               GrantKind = "manual_adjustment"
)

// GrantSource tags which path performed a ledger write.
type GrantSource string

const (
	SourceWebhook GrantSource = "webhook"
	SourceVerify  GrantSource = "verify"
	SourceWorker  GrantSource = "reconcile_worker"
	SourceManual  GrantSource = "manual"
)

// PurchaseStatus is the settlement state of a ledger row.
type PurchaseStatus string

const (
	PurchaseCompleted    PurchaseStatus = "completed"
	PurchaseUnattributed PurchaseStatus = "unattributed"
)

// CreditPurchaseRecord is one ledger row. ExternalID is unique and its
// presence means the credit effect was applied.
type CreditPurchaseRecord struct {
	ID               string
	ExternalID       string
	Kind             GrantKind
	Source           GrantSource
	Status           PurchaseStatus
	UserID           string
	Email            string
	PlanID           PlanID
	PaymentIntent    string
	CreditsRequested int64
	CreditsGranted   int64
	BalanceAfter     *int64
	AmountPaid       decimal.Decimal
	Currency         string
	Metadata         map[string]string
	CreatedAt        time.Time
}

// Attributed reports whether the record names a user.
func (r CreditPurchaseRecord) Attributed() bool { return r.UserID != "" }

// CreditRule computes the delta to add to a locked balance. Negative results
// are clamped to zero by the ledger.
type CreditRule func(current int64) int64
