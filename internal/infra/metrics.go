package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	CreditsGrantedTotal *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	SignatureFailures   prometheus.Counter
	RateLimitedTotal    *prometheus.CounterVec
	WorkerReplaysTotal  *prometheus.CounterVec
	registry            *prometheus.Registry
}

// NewMetrics creates and registers the collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_total",
				Help: "Billing events reconciled, by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		CreditsGrantedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_credits_granted_total",
				Help: "Credits added to user balances, by grant kind",
			},
			[]string{"kind"},
		),
		PersistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_persistence_failures_total",
				Help: "Authenticated events whose datastore writes failed",
			},
			[]string{"stage"},
		),
		SignatureFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_webhook_signature_failures_total",
				Help: "Webhook deliveries rejected by the authenticity check",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rate_limited_total",
				Help: "Requests rejected by the rate limiter, by route",
			},
			[]string{"route"},
		),
		WorkerReplaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_worker_replays_total",
				Help: "Stored events replayed by the reconciliation worker, by result",
			},
			[]string{"result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.EventsTotal,
		m.CreditsGrantedTotal,
		m.PersistenceFailures,
		m.SignatureFailures,
		m.RateLimitedTotal,
		m.WorkerReplaysTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordCredits(kind string, credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	m.CreditsGrantedTotal.WithLabelValues(kind).Add(float64(credits))
}

func (m *Metrics) RecordPersistenceFailure(stage string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordSignatureFailure() {
	if m == nil {
		return
	}
	m.SignatureFailures.Inc()
}

func (m *Metrics) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordReplay(result string) {
	if m == nil {
		return
	}
	m.WorkerReplaysTotal.WithLabelValues(result).Inc()
}
