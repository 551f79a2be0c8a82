package reconcile

import (
	"context"
	"errors"
	"time"

	"creditledger/internal/domain"
)

// WorkerOptions bound how the worker retries stored events.
type WorkerOptions struct {
	PollInterval time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration
	BatchSize    int
}

// Worker replays events whose processing failed or stalled after the
// webhook was acknowledged.
type Worker struct {
	svc  *Service
	opts WorkerOptions
}

func NewWorker(svc *Service, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	return &Worker{svc: svc, opts: opts}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.svc.logger.Info().
		Dur("poll_interval", w.opts.PollInterval).
		Int("max_attempts", w.opts.MaxAttempts).
		Msg("worker: started")
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		n, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.svc.logger.Error().Err(err).Msg("worker: claim failed")
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// RunOnce claims one batch and replays it. It returns the number of events
// claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	events, err := w.svc.events.ClaimRetryable(ctx, w.opts.MaxAttempts, w.opts.StaleAfter, w.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		out, err := w.svc.Replay(ctx, ev)
		result := string(domain.EventProcessed)
		switch {
		case errors.Is(err, domain.ErrInvalidEvent):
			result = string(domain.EventRejected)
		case err != nil:
			result = string(domain.EventFailed)
		}
		w.svc.metrics.RecordReplay(result)
		w.svc.logger.Info().
			Str("event_id", ev.ID).
			Str("event_type", ev.Type).
			Int("attempt", ev.Attempts).
			Str("outcome", string(out.Action)).
			Str("result", result).
			Msg("worker: replayed event")
	}
	return len(events), nil
}
