package reconcile

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"creditledger/internal/creditpolicy"
	"creditledger/internal/domain"
)

// SettlementPrefix keys a manual grant that settles an unattributed checkout
// session. The unattributed listing hides sessions that have one.
const SettlementPrefix = "settle_"

// ManualGrant is an operator adjustment. Reference is the ledger key; reuse
// it to make a retried grant a no-op.
type ManualGrant struct {
	UserID    string
	Credits   int64
	Reference string
	Note      string
	Operator  string
}

// GrantManual adds credits outside any provider event, typically to settle
// an unattributed purchase.
func (s *Service) GrantManual(ctx context.Context, g ManualGrant) (Outcome, error) {
	g.UserID = strings.TrimSpace(g.UserID)
	if g.UserID == "" {
		return Outcome{}, invalid("user id is required")
	}
	if g.Credits <= 0 {
		return Outcome{}, invalid("credits must be positive")
	}
	md := map[string]string{}
	ref := strings.TrimSpace(g.Reference)
	switch {
	case ref == "":
		ref = "manual_" + uuid.NewString()
	case strings.HasPrefix(ref, "cs_"):
		md["settles"] = ref
		ref = SettlementPrefix + ref
	}
	if g.Note != "" {
		md["note"] = g.Note
	}
	if g.Operator != "" {
		md["operator"] = g.Operator
	}
	entry := domain.CreditPurchaseRecord{
		ExternalID:       ref,
		Kind:             domain.GrantManual,
		Source:           domain.SourceManual,
		Status:           domain.PurchaseCompleted,
		UserID:           g.UserID,
		CreditsRequested: g.Credits,
		Metadata:         md,
	}
	out, err := s.applyGrant(ctx, entry, creditpolicy.AdditiveRule(g.Credits))
	if err == nil {
		s.logger.Info().
			Str("external_id", ref).
			Str("user_id", g.UserID).
			Int64("credits_granted", out.CreditsGranted).
			Str("operator", g.Operator).
			Str("outcome", string(out.Action)).
			Msg("manual credit grant")
	}
	return out, err
}
