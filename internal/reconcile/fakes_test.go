package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"creditledger/internal/domain"
	"creditledger/internal/providers/payment"
)

// memLedger applies entries under one lock, like the row lock plus unique
// key of the database ledger.
type memLedger struct {
	mu       sync.Mutex
	rows     map[string]domain.CreditPurchaseRecord
	balances map[string]int64
	applyErr error
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[string]domain.CreditPurchaseRecord{}, balances: map[string]int64{}}
}

func (l *memLedger) Apply(_ context.Context, entry domain.CreditPurchaseRecord, rule domain.CreditRule) (*domain.CreditPurchaseRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return nil, false, l.applyErr
	}
	if existing, ok := l.rows[entry.ExternalID]; ok {
		return &existing, false, nil
	}
	if entry.Attributed() {
		delta := rule(l.balances[entry.UserID])
		if delta < 0 {
			delta = 0
		}
		l.balances[entry.UserID] += delta
		after := l.balances[entry.UserID]
		entry.CreditsGranted = delta
		entry.BalanceAfter = &after
	}
	l.rows[entry.ExternalID] = entry
	return &entry, true, nil
}

func (l *memLedger) GetByExternalID(_ context.Context, id string) (*domain.CreditPurchaseRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (l *memLedger) GetBalance(_ context.Context, userID string) (*domain.UserCreditBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &domain.UserCreditBalance{UserID: userID, Balance: l.balances[userID]}, nil
}

func (l *memLedger) ListUnattributed(context.Context, int) ([]domain.CreditPurchaseRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CreditPurchaseRecord
	for _, r := range l.rows {
		if !r.Attributed() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memLedger) balance(user string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[user]
}

type memSubs struct {
	mu        sync.Mutex
	rows      map[string]domain.SubscriptionRecord
	upsertErr error
}

func (s *memSubs) Upsert(_ context.Context, rec *domain.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if s.rows == nil {
		s.rows = map[string]domain.SubscriptionRecord{}
	}
	next := *rec
	if prev, ok := s.rows[rec.SubscriptionID]; ok && prev.Status == domain.SubscriptionCanceled {
		next.Status = prev.Status
		next.CanceledAt = prev.CanceledAt
	}
	s.rows[rec.SubscriptionID] = next
	return nil
}

func (s *memSubs) MarkCanceled(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	rec.Status = domain.SubscriptionCanceled
	rec.CanceledAt = &at
	s.rows[id] = rec
	return true, nil
}

func (s *memSubs) LatestForUser(_ context.Context, userID string) (*domain.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.UserID == userID {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memEvents struct {
	mu        sync.Mutex
	rows      map[string]domain.WebhookEvent
	recordErr error
	reopened  int
}

func (e *memEvents) Record(_ context.Context, ev *domain.WebhookEvent) (bool, *domain.WebhookEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recordErr != nil {
		return false, nil, e.recordErr
	}
	if e.rows == nil {
		e.rows = map[string]domain.WebhookEvent{}
	}
	if existing, ok := e.rows[ev.ID]; ok {
		return false, &existing, nil
	}
	stored := *ev
	stored.Status = domain.EventReceived
	stored.Attempts = 1
	e.rows[ev.ID] = stored
	return true, &stored, nil
}

func (e *memEvents) Reopen(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reopened++
	ev := e.rows[id]
	ev.Attempts++
	e.rows[id] = ev
	return nil
}

func (e *memEvents) Finish(_ context.Context, id string, status domain.WebhookEventStatus, msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	ev.Status = status
	ev.ProcessingError = msg
	e.rows[id] = ev
	return nil
}

func (e *memEvents) ClaimRetryable(_ context.Context, maxAttempts int, _ time.Duration, limit int) ([]domain.WebhookEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.WebhookEvent
	for id, ev := range e.rows {
		if len(out) == limit {
			break
		}
		if ev.Status != domain.EventFailed || ev.Attempts >= maxAttempts {
			continue
		}
		ev.Attempts++
		ev.Status = domain.EventReceived
		e.rows[id] = ev
		out = append(out, ev)
	}
	return out, nil
}

func (e *memEvents) ListFailed(context.Context, int) ([]domain.WebhookEvent, error) {
	return nil, nil
}

func (e *memEvents) status(id string) domain.WebhookEventStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows[id].Status
}

type fakeProvider struct {
	sessions map[string]*payment.CheckoutSession
	subs     map[string]*payment.Subscription
	emails   map[string]string
	subCalls int
}

func (p *fakeProvider) CheckoutSession(_ context.Context, id string) (*payment.CheckoutSession, error) {
	if s, ok := p.sessions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (p *fakeProvider) Subscription(_ context.Context, id string) (*payment.Subscription, error) {
	p.subCalls++
	if s, ok := p.subs[id]; ok {
		return s, nil
	}
	return nil, errors.New("provider unavailable")
}

func (p *fakeProvider) CustomerEmail(_ context.Context, id string) (string, error) {
	if e, ok := p.emails[id]; ok {
		return e, nil
	}
	return "", domain.ErrNotFound
}

type harness struct {
	svc      *Service
	ledger   *memLedger
	subs     *memSubs
	events   *memEvents
	provider *fakeProvider
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger: newMemLedger(),
		subs:   &memSubs{},
		events: &memEvents{},
		provider: &fakeProvider{
			sessions: map[string]*payment.CheckoutSession{},
			subs:     map[string]*payment.Subscription{},
			emails:   map[string]string{},
		},
	}
	h.svc = NewService(Deps{
		Ledger:        h.ledger,
		Subscriptions: h.subs,
		Events:        h.events,
		Provider:      h.provider,
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return fixedNow },
	})
	return h
}

func event(t *testing.T, id, typ string, obj any) payment.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	return payment.Event{ID: id, Type: typ, Object: raw}
}

func paidSession(id, mode string, md map[string]string) map[string]any {
	return map[string]any{
		"id":             id,
		"mode":           mode,
		"status":         "complete",
		"payment_status": "paid",
		"amount_total":   499,
		"currency":       "usd",
		"customer":       "cus_1",
		"payment_intent": "pi_" + id,
		"customer_details": map[string]any{
			"email": "buyer@example.com",
		},
		"metadata": md,
	}
}
