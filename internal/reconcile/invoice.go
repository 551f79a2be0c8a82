package reconcile

import (
	"context"
	"fmt"
	"strings"

	"creditledger/internal/creditpolicy"
	"creditledger/internal/domain"
	"creditledger/internal/providers/payment"
)

// applyInvoice credits renewals only. Trial and zero-amount invoices grant
// nothing, and the first invoice of a subscription is covered by its
// checkout session. Any other billing reason is left out of the ledger so it
// can still be granted by hand.
func (s *Service) applyInvoice(ctx context.Context, inv payment.Invoice, source domain.GrantSource) (Outcome, error) {
	if inv.ID == "" {
		return Outcome{}, invalid("invoice without id")
	}
	skip := Outcome{Action: ActionSkipped, ExternalID: inv.ID}
	switch {
	case inv.AmountPaid <= 0:
		skip.Reason = "zero_amount"
		return skip, nil
	case inv.BillingReason == payment.BillingReasonCreate:
		skip.Reason = "initial_invoice"
		return skip, nil
	case inv.BillingReason != payment.BillingReasonCycle:
		skip.Reason = "unclassified_billing_reason"
		s.logger.Warn().
			Str("invoice_id", inv.ID).
			Str("billing_reason", inv.BillingReason).
			Int64("amount_paid", inv.AmountPaid).
			Msg("paid invoice with unhandled billing reason, not credited")
		return skip, nil
	}

	subID := inv.SubscriptionID()
	if subID == "" {
		return Outcome{}, invalid("renewal invoice %s has no subscription", inv.ID)
	}
	md := inv.SubscriptionMetadata()
	if strings.TrimSpace(md[payment.MetaPlanID]) == "" {
		if s.provider == nil {
			return Outcome{}, fmt.Errorf("invoice %s needs subscription %s but no provider is configured", inv.ID, subID)
		}
		sub, err := s.provider.Subscription(ctx, subID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load subscription %s for invoice %s: %w", subID, inv.ID, err)
		}
		md = sub.Metadata
	}
	plan, err := s.planFromMetadata(inv.ID, md)
	if err != nil {
		return Outcome{}, err
	}

	entry := domain.CreditPurchaseRecord{
		ExternalID:       inv.ID,
		Kind:             domain.GrantRenewal,
		Source:           source,
		Status:           domain.PurchaseCompleted,
		UserID:           strings.TrimSpace(md[payment.MetaUserID]),
		Email:            strings.TrimSpace(inv.CustomerEmail),
		PlanID:           plan.ID,
		PaymentIntent:    inv.PaymentIntent.String(),
		CreditsRequested: requestedFor(plan.Credits),
		AmountPaid:       payment.FromMinorUnits(inv.AmountPaid),
		Currency:         payment.NormalizeCurrency(inv.Currency),
		Metadata: map[string]string{
			"subscription_id":  subID,
			"billing_reason":   inv.BillingReason,
			payment.MetaPlanID: string(plan.ID),
		},
	}
	if entry.UserID == "" {
		entry.Status = domain.PurchaseUnattributed
		s.logger.Warn().Str("invoice_id", inv.ID).Str("subscription_id", subID).Msg("renewal has no user id, recording without credit")
	}
	return s.applyGrant(ctx, entry, creditpolicy.TopUpRule(plan.Credits))
}
