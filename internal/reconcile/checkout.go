package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"creditledger/internal/creditpolicy"
	"creditledger/internal/domain"
	"creditledger/internal/plans"
	"creditledger/internal/providers/payment"
)

// VerifyCheckout lets a client confirm a checkout session it returned from.
// It applies the same ledger entry as the webhook, so whichever arrives
// first credits and the other reports a duplicate.
func (s *Service) VerifyCheckout(ctx context.Context, sessionID string) (Outcome, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Outcome{}, invalid("session id is required")
	}
	sess, err := s.provider.CheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Outcome{}, fmt.Errorf("checkout session %s: %w", sessionID, domain.ErrNotFound)
		}
		return Outcome{}, err
	}
	if !sess.Settled() {
		return Outcome{}, fmt.Errorf("checkout session %s is %s/%s: %w", sessionID, sess.Status, sess.PaymentStatus, domain.ErrPaymentIncomplete)
	}

	ev := payment.Event{ID: "verify:" + sess.ID, Type: payment.EventCheckoutCompleted}
	out, err := s.applyCheckout(ctx, *sess, domain.SourceVerify)
	s.observe(ev, domain.SourceVerify, out, err)
	if err != nil {
		return out, err
	}
	if out.Email == "" {
		out.Email = sess.Email()
	}
	return out, nil
}

func (s *Service) applyCheckout(ctx context.Context, sess payment.CheckoutSession, source domain.GrantSource) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch sess.Mode {
	case payment.CheckoutModePayment:
		out, err = s.applyCreditPurchase(ctx, sess, source)
	case payment.CheckoutModeSubscription:
		out, err = s.applySubscriptionCheckout(ctx, sess, source)
	default:
		return Outcome{}, invalid("checkout session %s has unsupported mode %q", sess.ID, sess.Mode)
	}
	out.Mode = sess.Mode
	return out, err
}

func (s *Service) applyCreditPurchase(ctx context.Context, sess payment.CheckoutSession, source domain.GrantSource) (Outcome, error) {
	raw := strings.TrimSpace(sess.Metadata[payment.MetaCredits])
	if raw == "" {
		return Outcome{}, invalid("checkout session %s has no credits metadata", sess.ID)
	}
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || credits <= 0 {
		return Outcome{}, invalid("checkout session %s has bad credits metadata %q", sess.ID, raw)
	}

	entry := s.checkoutEntry(sess, domain.GrantPurchase, source)
	entry.CreditsRequested = credits
	if rt := sess.Metadata[payment.MetaReturnURL]; rt != "" {
		entry.Metadata[payment.MetaReturnURL] = rt
	}
	return s.applyGrant(ctx, entry, creditpolicy.AdditiveRule(credits))
}

func (s *Service) applySubscriptionCheckout(ctx context.Context, sess payment.CheckoutSession, source domain.GrantSource) (Outcome, error) {
	plan, err := s.planFromMetadata(sess.ID, sess.Metadata)
	if err != nil {
		return Outcome{}, err
	}

	entry := s.checkoutEntry(sess, domain.GrantSubscriptionCheckout, source)
	entry.PlanID = plan.ID
	entry.CreditsRequested = requestedFor(plan.Credits)
	entry.Metadata[payment.MetaPlanID] = string(plan.ID)
	if sub := sess.Subscription.String(); sub != "" {
		entry.Metadata["subscription_id"] = sub
	}
	if period := sess.Metadata[payment.MetaBillingPeriod]; period != "" {
		entry.Metadata[payment.MetaBillingPeriod] = period
	}
	return s.applyGrant(ctx, entry, creditpolicy.TopUpRule(plan.Credits))
}

func (s *Service) checkoutEntry(sess payment.CheckoutSession, kind domain.GrantKind, source domain.GrantSource) domain.CreditPurchaseRecord {
	entry := domain.CreditPurchaseRecord{
		ExternalID:    sess.ID,
		Kind:          kind,
		Source:        source,
		Status:        domain.PurchaseCompleted,
		UserID:        strings.TrimSpace(sess.Metadata[payment.MetaUserID]),
		Email:         sess.Email(),
		PaymentIntent: sess.PaymentIntent.String(),
		AmountPaid:    payment.FromMinorUnits(sess.AmountTotal),
		Currency:      payment.NormalizeCurrency(sess.Currency),
		Metadata:      map[string]string{"mode": sess.Mode},
	}
	if c := sess.Customer.String(); c != "" {
		entry.Metadata["customer_id"] = c
	}
	if entry.UserID == "" {
		entry.Status = domain.PurchaseUnattributed
		s.logger.Warn().
			Str("session_id", sess.ID).
			Str("email", entry.Email).
			Str("mode", sess.Mode).
			Msg("checkout session has no user id, recording without credit")
	}
	return entry
}

// planFromMetadata resolves plan_id strictly against the catalog. A
// credits_per_month value that disagrees with the catalog is logged and the
// catalog wins.
func (s *Service) planFromMetadata(ref string, md map[string]string) (domain.PlanConfig, error) {
	raw := strings.TrimSpace(md[payment.MetaPlanID])
	if raw == "" {
		return domain.PlanConfig{}, invalid("%s has no plan_id metadata", ref)
	}
	plan, err := plans.Lookup(domain.PlanID(raw))
	if err != nil {
		return domain.PlanConfig{}, fmt.Errorf("%w: %s: %w", domain.ErrInvalidEvent, ref, err)
	}
	if v := strings.TrimSpace(md[payment.MetaCreditsPerMonth]); v != "" {
		if got, err := domain.ParseCreditCap(v); err != nil || got != plan.Credits {
			s.logger.Warn().
				Str("ref", ref).
				Str("plan_id", string(plan.ID)).
				Str("metadata_credits", v).
				Str("catalog_credits", plan.Credits.String()).
				Msg("credits_per_month metadata disagrees with catalog")
		}
	}
	return plan, nil
}

func requestedFor(c domain.CreditCap) int64 {
	if n, ok := c.Limit(); ok {
		return n
	}
	return creditpolicy.UnlimitedTopUp
}
