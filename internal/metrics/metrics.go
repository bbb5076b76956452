package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for requirements lookups and the entry lifecycle.
type Metrics struct {
	CacheLookups         *prometheus.CounterVec
	RequirementsComputed *prometheus.CounterVec
	Submissions          *prometheus.CounterVec
	SubmissionDuration   prometheus.Histogram
	StatusTransitions    *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entryready_requirements_cache_lookups_total",
			Help: "Requirements cache lookups by backend and result",
		}, []string{"backend", "result"}),
		RequirementsComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entryready_requirements_computed_total",
			Help: "Requirements computed from rules, by support outcome",
		}, []string{"outcome"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entryready_dac_submissions_total",
			Help: "Arrival card submission attempts by card type and status",
		}, []string{"card_type", "status"}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "entryready_dac_submission_duration_seconds",
			Help:    "Duration of calls to the arrival card service",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entryready_entry_status_transitions_total",
			Help: "Entry status transitions by source and target status",
		}, []string{"from", "to"}),
	}
}

// Nop returns collectors registered nowhere, for callers without a registry.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) CacheHit(backend string) {
	m.CacheLookups.WithLabelValues(backend, "hit").Inc()
}

func (m *Metrics) CacheMiss(backend string) {
	m.CacheLookups.WithLabelValues(backend, "miss").Inc()
}

func (m *Metrics) Computed(supported bool) {
	outcome := "supported"
	if !supported {
		outcome = "unsupported"
	}
	m.RequirementsComputed.WithLabelValues(outcome).Inc()
}

// ObserveSubmission records one finished attempt. Call with time.Now() taken
// before the remote call.
func (m *Metrics) ObserveSubmission(cardType, status string, start time.Time) {
	m.Submissions.WithLabelValues(cardType, status).Inc()
	m.SubmissionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Transition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}
