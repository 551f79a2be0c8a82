package domain

import "time"

// SubscriptionStatus mirrors the provider's subscription status vocabulary.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionPaused            SubscriptionStatus = "paused"
)

// Entitling reports whether the status still grants plan benefits.
func (s SubscriptionStatus) Entitling() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}

// SubscriptionRecord is the local snapshot of a provider subscription.
type SubscriptionRecord struct {
	SubscriptionID     string
	CustomerID         string
	UserID             string
	Email              string
	PlanID             PlanID
	BillingPeriod      BillingPeriod
	Credits            CreditCap
	StorageIncludedMB  int64
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
