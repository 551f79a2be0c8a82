package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/sqlinline"
)

// EventLogPG implements domain.EventLog over the stripe_events table.
type EventLogPG struct {
	db infra.SQLExecutor
}

func NewEventLog(db infra.SQLExecutor) *EventLogPG {
	return &EventLogPG{db: db}
}

// Record inserts ev if its id is new. For a known id the stored row is returned.
func (r *EventLogPG) Record(ctx context.Context, ev *domain.WebhookEvent) (bool, *domain.WebhookEvent, error) {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	tag, err := r.db.Exec(ctx, sqlinline.QInsertStripeEvent, ev.ID, ev.Type, payload)
	if err != nil {
		return false, nil, fmt.Errorf("insert stripe event: %w", err)
	}
	if tag.RowsAffected() > 0 {
		stored := *ev
		stored.Status = domain.EventReceived
		stored.Attempts = 1
		return true, &stored, nil
	}
	stored, err := scanEvent(r.db.QueryRow(ctx, sqlinline.QSelectStripeEvent, ev.ID))
	if err != nil {
		return false, nil, fmt.Errorf("load stripe event: %w", err)
	}
	return false, stored, nil
}

// Reopen counts another processing attempt for a stored event.
func (r *EventLogPG) Reopen(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, sqlinline.QRetryStripeEvent, id)
	return err
}

// Finish records the processing result.
func (r *EventLogPG) Finish(ctx context.Context, id string, status domain.WebhookEventStatus, processingErr string) error {
	_, err := r.db.Exec(ctx, sqlinline.QFinishStripeEvent, id, string(status), processingErr)
	return err
}

// ClaimRetryable claims up to limit failed or stalled events for replay.
func (r *EventLogPG) ClaimRetryable(ctx context.Context, maxAttempts int, staleAfter time.Duration, limit int) ([]domain.WebhookEvent, error) {
	rows, err := r.db.Query(ctx, sqlinline.QClaimRetryableStripeEvents, maxAttempts, staleAfter.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ListFailed lists the most recent failed events.
func (r *EventLogPG) ListFailed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListFailedStripeEvents, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.WebhookEvent, error) {
	defer rows.Close()
	var items []domain.WebhookEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var (
		ev     domain.WebhookEvent
		status string
	)
	if err := row.Scan(&ev.ID, &ev.Type, &ev.Payload, &status, &ev.Attempts, &ev.ProcessingError, &ev.ReceivedAt, &ev.ProcessedAt); err != nil {
		return nil, err
	}
	ev.Status = domain.WebhookEventStatus(status)
	return &ev, nil
}

var _ domain.EventLog = (*EventLogPG)(nil)
