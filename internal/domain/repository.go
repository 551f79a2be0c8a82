package domain

import (
	"context"
	"time"
)

// CreditLedger persists ledger rows and balances.
type CreditLedger interface {
	// Apply inserts entry keyed by ExternalID and, for attributed entries,
	// adds rule(current balance) to the user's balance in the same unit of
	// work. When ExternalID already exists nothing changes and the stored
	// record is returned with applied=false.
	Apply(ctx context.Context, entry CreditPurchaseRecord, rule CreditRule) (rec *CreditPurchaseRecord, applied bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*CreditPurchaseRecord, error)
	GetBalance(ctx context.Context, userID string) (*UserCreditBalance, error)
	ListUnattributed(ctx context.Context, limit int) ([]CreditPurchaseRecord, error)
}

// SubscriptionRepository stores subscription snapshots.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, rec *SubscriptionRecord) error
	MarkCanceled(ctx context.Context, subscriptionID string, canceledAt time.Time) (bool, error)
	LatestForUser(ctx context.Context, userID string) (*SubscriptionRecord, error)
}

// EventLog stores authenticated provider events for dedupe and replay.
type EventLog interface {
	Record(ctx context.Context, ev *WebhookEvent) (created bool, stored *WebhookEvent, err error)
	Reopen(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status WebhookEventStatus, processingErr string) error
	ClaimRetryable(ctx context.Context, maxAttempts int, staleAfter time.Duration, limit int) ([]WebhookEvent, error)
	ListFailed(ctx context.Context, limit int) ([]WebhookEvent, error)
}
