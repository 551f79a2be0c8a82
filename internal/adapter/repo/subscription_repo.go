package repo

import (
	"context"
	"time"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/sqlinline"
)

// SubscriptionRepositoryPG implements domain.SubscriptionRepository.
type SubscriptionRepositoryPG struct {
	db infra.SQLExecutor
}

func NewSubscriptionRepository(db infra.SQLExecutor) *SubscriptionRepositoryPG {
	return &SubscriptionRepositoryPG{db: db}
}

// Upsert writes the latest provider view of a subscription.
func (r *SubscriptionRepositoryPG) Upsert(ctx context.Context, rec *domain.SubscriptionRecord) error {
	limit, capped := rec.Credits.Limit()
	_, err := r.db.Exec(ctx, sqlinline.QUpsertSubscription,
		rec.SubscriptionID,
		rec.CustomerID,
		rec.UserID,
		rec.Email,
		string(rec.PlanID),
		string(rec.BillingPeriod),
		limit,
		!capped,
		rec.StorageIncludedMB,
		string(rec.Status),
		rec.CurrentPeriodStart,
		rec.CurrentPeriodEnd,
		rec.TrialEnd,
		rec.CancelAtPeriodEnd,
		rec.CanceledAt,
	)
	return err
}

// MarkCanceled stamps a subscription canceled. It reports false when no row exists.
func (r *SubscriptionRepositoryPG) MarkCanceled(ctx context.Context, subscriptionID string, canceledAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QCancelSubscription, subscriptionID, canceledAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LatestForUser returns the most recently updated subscription of a user.
func (r *SubscriptionRepositoryPG) LatestForUser(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	var (
		rec                    domain.SubscriptionRecord
		planID, period, status string
		creditsLimit           int64
		unlimited              bool
	)
	err := r.db.QueryRow(ctx, sqlinline.QLatestSubscriptionForUser, userID).Scan(
		&rec.SubscriptionID,
		&rec.CustomerID,
		&rec.UserID,
		&rec.Email,
		&planID,
		&period,
		&creditsLimit,
		&unlimited,
		&rec.StorageIncludedMB,
		&status,
		&rec.CurrentPeriodStart,
		&rec.CurrentPeriodEnd,
		&rec.TrialEnd,
		&rec.CancelAtPeriodEnd,
		&rec.CanceledAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.PlanID = domain.PlanID(planID)
	rec.BillingPeriod = domain.BillingPeriod(period)
	rec.Status = domain.SubscriptionStatus(status)
	if unlimited {
		rec.Credits = domain.Unlimited()
	} else {
		rec.Credits = domain.Capped(creditsLimit)
	}
	return &rec, nil
}

var _ domain.SubscriptionRepository = (*SubscriptionRepositoryPG)(nil)
