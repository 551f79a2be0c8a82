package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"creditledger/internal/domain"
	"creditledger/internal/providers/payment"
)

func (s *Service) upsertSubscription(ctx context.Context, sub payment.Subscription) (Outcome, error) {
	rec, err := s.snapshot(ctx, sub)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.subs.Upsert(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}
	return Outcome{Action: ActionRecorded, ExternalID: sub.ID, UserID: rec.UserID, Email: rec.Email}, nil
}

// cancelSubscription stores the deleted payload as a canceled snapshot so a
// deletion that overtakes its creation is not lost. Payloads without usable
// plan metadata can only cancel a row that already exists.
func (s *Service) cancelSubscription(ctx context.Context, sub payment.Subscription) (Outcome, error) {
	if sub.ID == "" {
		return Outcome{}, invalid("subscription without id")
	}
	at := s.now().UTC()
	if t := unixPtr(sub.CanceledAt); t != nil {
		at = *t
	} else if t := unixPtr(sub.EndedAt); t != nil {
		at = *t
	}

	rec, err := s.snapshot(ctx, sub)
	switch {
	case err == nil:
		rec.Status = domain.SubscriptionCanceled
		rec.CanceledAt = &at
		if err := s.subs.Upsert(ctx, rec); err != nil {
			return Outcome{}, fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
		}
		return Outcome{Action: ActionRecorded, ExternalID: sub.ID, UserID: rec.UserID, Email: rec.Email}, nil
	case !errors.Is(err, domain.ErrInvalidEvent):
		return Outcome{}, err
	}

	found, err := s.subs.MarkCanceled(ctx, sub.ID, at)
	if err != nil {
		return Outcome{}, fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
	}
	if !found {
		s.logger.Warn().Str("subscription_id", sub.ID).Msg("canceled subscription was never recorded")
		return Outcome{Action: ActionSkipped, ExternalID: sub.ID, Reason: "unknown_subscription"}, nil
	}
	return Outcome{Action: ActionRecorded, ExternalID: sub.ID, UserID: sub.Metadata[payment.MetaUserID]}, nil
}

func (s *Service) snapshot(ctx context.Context, sub payment.Subscription) (*domain.SubscriptionRecord, error) {
	if sub.ID == "" {
		return nil, invalid("subscription without id")
	}
	plan, err := s.planFromMetadata(sub.ID, sub.Metadata)
	if err != nil {
		return nil, err
	}
	period, err := domain.ParseBillingPeriod(sub.Metadata[payment.MetaBillingPeriod])
	if err != nil {
		period = domain.PeriodMonthly
		s.logger.Warn().Str("subscription_id", sub.ID).Str("billing_period", sub.Metadata[payment.MetaBillingPeriod]).Msg("missing billing period, assuming monthly")
	}

	start, end := sub.Period()
	rec := &domain.SubscriptionRecord{
		SubscriptionID:     sub.ID,
		CustomerID:         sub.Customer.String(),
		UserID:             strings.TrimSpace(sub.Metadata[payment.MetaUserID]),
		Email:              s.customerEmail(ctx, sub.Customer.String()),
		PlanID:             plan.ID,
		BillingPeriod:      period,
		Credits:            plan.Credits,
		StorageIncludedMB:  plan.StorageIncludedMB,
		Status:             domain.SubscriptionStatus(sub.Status),
		CurrentPeriodStart: unixPtr(start),
		CurrentPeriodEnd:   unixPtr(end),
		TrialEnd:           unixPtr(sub.TrialEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         unixPtr(sub.CanceledAt),
	}
	if rec.UserID == "" {
		s.logger.Warn().Str("subscription_id", sub.ID).Msg("subscription has no user id")
	}
	return rec, nil
}

// customerEmail is best effort; the snapshot is still stored without it.
func (s *Service) customerEmail(ctx context.Context, customerID string) string {
	if customerID == "" || s.provider == nil {
		return ""
	}
	email, err := s.provider.CustomerEmail(ctx, customerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("customer_id", customerID).Msg("customer email lookup failed")
		return ""
	}
	return email
}
