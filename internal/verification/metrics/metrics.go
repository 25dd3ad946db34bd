package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Requests opened by verification type
	RequestsCreated *prometheus.CounterVec

	// Decisions applied by source ("automated", "adjudicator") and outcome
	Decisions *prometheus.CounterVec

	// Photo resubmissions
	Resubmissions prometheus.Counter

	// Engine call latency by outcome ("decided", "inconclusive", "failed")
	EngineLatency *prometheus.HistogramVec

	// Engine failures by category ("timeout", "unavailable", "bad_response", "circuit_open")
	EngineFailures *prometheus.CounterVec
}

// New registers the verification metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_verification_requests_created_total",
			Help: "Verification requests opened by type",
		}, []string{"type"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_verification_decisions_total",
			Help: "Decisions applied to verification requests by source and outcome",
		}, []string{"source", "decision"}),

		Resubmissions: f.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_verification_resubmissions_total",
			Help: "Photo resubmissions on existing verification requests",
		}),

		EngineLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycgate_engine_call_duration_seconds",
			Help:    "Duration of automated verification engine calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),

		EngineFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_engine_failures_total",
			Help: "Automated verification engine failures by category",
		}, []string{"category"}),
	}
}

func (m *Metrics) IncRequestCreated(verificationType string) {
	if m != nil {
		m.RequestsCreated.WithLabelValues(verificationType).Inc()
	}
}

func (m *Metrics) IncDecision(source, decision string) {
	if m != nil {
		m.Decisions.WithLabelValues(source, decision).Inc()
	}
}

func (m *Metrics) IncResubmission() {
	if m != nil {
		m.Resubmissions.Inc()
	}
}

// ObserveEngineCall records the duration of one engine call.
func (m *Metrics) ObserveEngineCall(outcome string, d time.Duration) {
	if m != nil {
		m.EngineLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncEngineFailure(category string) {
	if m != nil {
		m.EngineFailures.WithLabelValues(category).Inc()
	}
}
