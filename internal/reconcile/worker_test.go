package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditledger/internal/domain"
	"creditledger/internal/infra"
	"creditledger/internal/providers/payment"
)

func TestWorkerReplaysFailedEvents(t *testing.T) {
	h := newHarness(t)
	m := infra.NewMetrics(prometheus.NewRegistry())
	h.svc.metrics = m

	h.ledger.applyErr = errors.New("db restarting")
	ev := event(t, "evt_w", payment.EventCheckoutCompleted, paidSession("cs_w", "payment", map[string]string{
		"credits": "400", "user_id": "user-1",
	}))
	_, err := h.svc.HandleWebhook(context.Background(), ev)
	require.Error(t, err)

	w := NewWorker(h.svc, WorkerOptions{MaxAttempts: 3})

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.EventFailed, h.events.status("evt_w"))

	h.ledger.applyErr = nil
	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.EventProcessed, h.events.status("evt_w"))
	assert.Equal(t, int64(400), h.ledger.balance("user-1"))

	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerReplaysTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerReplaysTotal.WithLabelValues("processed")))
}

func TestWorkerStopsAtMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.ledger.applyErr = errors.New("permanent")
	ev := event(t, "evt_max", payment.EventCheckoutCompleted, paidSession("cs_max", "payment", map[string]string{
		"credits": "80", "user_id": "user-1",
	}))
	_, _ = h.svc.HandleWebhook(context.Background(), ev)

	w := NewWorker(h.svc, WorkerOptions{MaxAttempts: 2})
	n, _ := w.RunOnce(context.Background())
	assert.Equal(t, 1, n)
	n, _ = w.RunOnce(context.Background())
	assert.Zero(t, n)
	assert.Equal(t, 2, h.events.rows["evt_max"].Attempts)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	w := NewWorker(h.svc, WorkerOptions{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
