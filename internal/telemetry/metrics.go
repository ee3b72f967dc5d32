// Package telemetry holds the Prometheus collectors shared by the reconciler and the HTTP endpoint.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EventsDispatched *prometheus.CounterVec
	AutoCreated      *prometheus.CounterVec
	AmbiguousMatches prometheus.Counter
	DispatchDuration *prometheus.HistogramVec
	WebhookFailures  prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsync_events_dispatched_total",
			Help: "Number of feed events dispatched, by event kind and outcome",
		}, []string{"kind", "outcome"}),
		AutoCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsync_auto_created_total",
			Help: "Number of placeholder rows created for entities referenced before their own event",
		}, []string{"entity"}),
		AmbiguousMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventsync_ambiguous_session_matches_total",
			Help: "Number of participation events that matched more than one open session",
		}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventsync_dispatch_duration_seconds",
			Help:    "Time spent reconciling a single feed event",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		WebhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventsync_webhook_failures_total",
			Help: "Number of session summary webhook deliveries that failed",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsDispatched, m.AutoCreated, m.AmbiguousMatches, m.DispatchDuration, m.WebhookFailures)
	}
	return m
}

func (m *Metrics) ObserveDispatch(kind, outcome string, elapsed time.Duration) {
	m.EventsDispatched.WithLabelValues(kind, outcome).Inc()
	m.DispatchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAutoCreated(entity string) {
	m.AutoCreated.WithLabelValues(entity).Inc()
}
