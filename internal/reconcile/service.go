// Package reconcile applies payment provider events and client verification
// calls to the credit ledger exactly once per billing event.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/providers/payment"
)

// Provider is the read side of the payment provider.
type Provider interface {
	CheckoutSession(ctx context.Context, id string) (*payment.CheckoutSession, error)
	Subscription(ctx context.Context, id string) (*payment.Subscription, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// Action is what reconciling an event did.
type Action string

const (
	ActionCredited     Action = "credited"
	ActionDuplicate    Action = "duplicate"
	ActionUnattributed Action = "unattributed"
	ActionRecorded     Action = "recorded"
	ActionSkipped      Action = "skipped"
	ActionIgnored      Action = "ignored"
	ActionRejected     Action = "rejected"
	ActionFailed       Action = "failed"
)

// Outcome describes the effect of one reconciled event.
type Outcome struct {
	Action         Action           `json:"action"`
	ExternalID     string           `json:"external_id,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	Kind           domain.GrantKind `json:"kind,omitempty"`
	CreditsGranted int64            `json:"credits_granted"`
	Balance        *int64           `json:"balance,omitempty"`
	Email          string           `json:"email,omitempty"`
	Mode           string           `json:"mode,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// Deps are the collaborators of a Service.
type Deps struct {
	Ledger        domain.CreditLedger
	Subscriptions domain.SubscriptionRepository
	Events        domain.EventLog
	Provider      Provider
	Logger        zerolog.Logger
	Metrics       *infra.Metrics
	Now           func() time.Time
}

// Service is the event reconciler.
type Service struct {
	ledger   domain.CreditLedger
	subs     domain.SubscriptionRepository
	events   domain.EventLog
	provider Provider
	logger   zerolog.Logger
	metrics  *infra.Metrics
	now      func() time.Time
}

func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		ledger:   d.Ledger,
		subs:     d.Subscriptions,
		events:   d.Events,
		provider: d.Provider,
		logger:   d.Logger.With().Str("component", "reconcile").Logger(),
		metrics:  d.Metrics,
		now:      now,
	}
}

// HandleWebhook records an authenticated event and reconciles it. A
// redelivery of an event that was already processed is a duplicate.
func (s *Service) HandleWebhook(ctx context.Context, ev payment.Event) (Outcome, error) {
	logged := s.events != nil
	if logged {
		created, stored, err := s.events.Record(ctx, &domain.WebhookEvent{ID: ev.ID, Type: ev.Type, Payload: ev.Object})
		switch {
		case err != nil:
			logged = false
			s.metrics.RecordPersistenceFailure("event_log")
			s.logger.Error().Err(err).Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("event log write failed, reconciling anyway")
		case !created && stored.Status == domain.EventProcessed:
			out := Outcome{Action: ActionDuplicate, Reason: "event_already_processed"}
			s.observe(ev, domain.SourceWebhook, out, nil)
			return out, nil
		case !created:
			if err := s.events.Reopen(ctx, ev.ID); err != nil {
				s.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("event attempt count not updated")
			}
		}
	}

	out, err := s.Dispatch(ctx, ev, domain.SourceWebhook)
	if logged {
		s.finish(ctx, ev.ID, err)
	}
	return out, err
}

// Replay reconciles a stored event again. The ledger key makes it safe to
// replay events whose first attempt partially succeeded.
func (s *Service) Replay(ctx context.Context, stored domain.WebhookEvent) (Outcome, error) {
	ev := payment.Event{ID: stored.ID, Type: stored.Type, Object: stored.Payload}
	out, err := s.Dispatch(ctx, ev, domain.SourceWorker)
	if s.events != nil {
		s.finish(ctx, stored.ID, err)
	}
	return out, err
}

// Dispatch classifies ev and applies its effect.
func (s *Service) Dispatch(ctx context.Context, ev payment.Event, source domain.GrantSource) (out Outcome, err error) {
	defer func() { s.observe(ev, source, out, err) }()

	switch ev.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncSucceeded:
		var sess payment.CheckoutSession
		if err := ev.Decode(&sess); err != nil {
			return Outcome{}, invalid("decode checkout session: %v", err)
		}
		if !sess.Settled() {
			return Outcome{Action: ActionSkipped, ExternalID: sess.ID, Mode: sess.Mode, Reason: "payment_pending"}, nil
		}
		return s.applyCheckout(ctx, sess, source)
	case payment.EventSubscriptionCreated, payment.EventSubscriptionUpdated:
		var sub payment.Subscription
		if err := ev.Decode(&sub); err != nil {
			return Outcome{}, invalid("decode subscription: %v", err)
		}
		return s.upsertSubscription(ctx, sub)
	case payment.EventSubscriptionDeleted:
		var sub payment.Subscription
		if err := ev.Decode(&sub); err != nil {
			return Outcome{}, invalid("decode subscription: %v", err)
		}
		return s.cancelSubscription(ctx, sub)
	case payment.EventInvoicePaid:
		var inv payment.Invoice
		if err := ev.Decode(&inv); err != nil {
			return Outcome{}, invalid("decode invoice: %v", err)
		}
		return s.applyInvoice(ctx, inv, source)
	case payment.EventInvoicePaymentFailed:
		var inv payment.Invoice
		if err := ev.Decode(&inv); err != nil {
			return Outcome{}, invalid("decode invoice: %v", err)
		}
		s.logger.Warn().
			Str("invoice_id", inv.ID).
			Str("subscription_id", inv.SubscriptionID()).
			Str("customer_id", inv.Customer.String()).
			Msg("invoice payment failed")
		return Outcome{Action: ActionSkipped, ExternalID: inv.ID, Reason: "payment_failed"}, nil
	}
	return Outcome{Action: ActionIgnored, Reason: "unhandled_event_type"}, nil
}

func (s *Service) applyGrant(ctx context.Context, entry domain.CreditPurchaseRecord, rule domain.CreditRule) (Outcome, error) {
	rec, applied, err := s.ledger.Apply(ctx, entry, rule)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply ledger entry %s: %w", entry.ExternalID, err)
	}
	out := Outcome{
		ExternalID:     rec.ExternalID,
		UserID:         rec.UserID,
		Kind:           rec.Kind,
		CreditsGranted: rec.CreditsGranted,
		Balance:        rec.BalanceAfter,
		Email:          rec.Email,
	}
	switch {
	case !applied:
		out.Action = ActionDuplicate
	case !rec.Attributed():
		out.Action = ActionUnattributed
	default:
		out.Action = ActionCredited
		s.metrics.RecordCredits(string(rec.Kind), rec.CreditsGranted)
	}
	return out, nil
}

func (s *Service) finish(ctx context.Context, eventID string, procErr error) {
	status, msg := domain.EventProcessed, ""
	switch {
	case errors.Is(procErr, domain.ErrInvalidEvent):
		status, msg = domain.EventRejected, procErr.Error()
	case procErr != nil:
		status, msg = domain.EventFailed, procErr.Error()
	}
	if err := s.events.Finish(ctx, eventID, status, msg); err != nil {
		s.metrics.RecordPersistenceFailure("event_log")
		s.logger.Error().Err(err).Str("event_id", eventID).Str("status", string(status)).Msg("event status not saved")
	}
}

func (s *Service) observe(ev payment.Event, source domain.GrantSource, out Outcome, err error) {
	action := out.Action
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		action = ActionRejected
	case err != nil:
		action = ActionFailed
	}
	s.metrics.RecordEvent(ev.Type, string(action))

	var entry *zerolog.Event
	switch action {
	case ActionFailed:
		s.metrics.RecordPersistenceFailure("apply")
		entry = s.logger.Error().Err(err)
	case ActionRejected:
		entry = s.logger.Warn().Err(err)
	case ActionUnattributed:
		entry = s.logger.Warn()
	default:
		entry = s.logger.Info()
	}
	entry.
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("source", string(source)).
		Str("external_id", out.ExternalID).
		Str("user_id", out.UserID).
		Int64("credits_granted", out.CreditsGranted).
		Str("outcome", string(action)).
		Str("reason", out.Reason).
		Msg("billing event reconciled")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidEvent, fmt.Sprintf(format, args...))
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
