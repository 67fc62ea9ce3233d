// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the poll loop, the meeting pipeline and every outbound collaborator call.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bot.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Poll loop
	PollCyclesTotal   *prometheus.CounterVec
	PollCycleSeconds  prometheus.Histogram
	LastPollTimestamp prometheus.Gauge
	ProcessedEvents   prometheus.Gauge

	// Pipeline
	EventOutcomesTotal *prometheus.CounterVec
	MatchTiersTotal    *prometheus.CounterVec
	PublishFailures    prometheus.Counter

	// Collaborators
	RequestsTotal  *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
}

// DefaultMetrics registers metrics with the global registry.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates and registers the metric set with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_poll_cycles_total",
				Help: "Poll cycles run, by result",
			},
			[]string{"result", "trigger"},
		),
		PollCycleSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recap_poll_cycle_seconds",
				Help:    "Wall time of one poll cycle",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		LastPollTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "recap_last_poll_timestamp_seconds",
				Help: "Unix time the last poll cycle finished",
			},
		),
		ProcessedEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "recap_processed_events",
				Help: "Entries currently held in the processed-event set",
			},
		),

		EventOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_event_outcomes_total",
				Help: "Processed meeting events, by outcome",
			},
			[]string{"outcome"},
		),
		MatchTiersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_match_tiers_total",
				Help: "Previous-occurrence lookups, by the tier that matched",
			},
			[]string{"tier"},
		),
		PublishFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recap_dispatch_publish_failures_total",
				Help: "Dispatch events that could not be published",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_collaborator_requests_total",
				Help: "Outbound HTTP requests, by collaborator and status",
			},
			[]string{"collaborator", "status"},
		),
		RequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recap_collaborator_request_seconds",
				Help:    "Outbound HTTP request latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"collaborator"},
		),
	}
}

// RecordCycle records a finished poll cycle.
func (m *Metrics) RecordCycle(result, trigger string, seconds float64, finishedUnix float64) {
	if m == nil {
		return
	}
	m.PollCyclesTotal.WithLabelValues(result, trigger).Inc()
	m.PollCycleSeconds.Observe(seconds)
	m.LastPollTimestamp.Set(finishedUnix)
}

// SetProcessedEvents sets the processed-set size.
func (m *Metrics) SetProcessedEvents(n int) {
	if m == nil {
		return
	}
	m.ProcessedEvents.Set(float64(n))
}

// RecordOutcome counts one pipeline outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.EventOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordMatchTier counts a lookup result. Use "none" when nothing matched.
func (m *Metrics) RecordMatchTier(tier string) {
	if m == nil {
		return
	}
	m.MatchTiersTotal.WithLabelValues(tier).Inc()
}

// RecordPublishFailure counts a dispatch event that was dropped.
func (m *Metrics) RecordPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// RecordRequest records one outbound request.
func (m *Metrics) RecordRequest(collaborator, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(collaborator, status).Inc()
	m.RequestSeconds.WithLabelValues(collaborator).Observe(seconds)
}
