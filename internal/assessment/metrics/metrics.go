package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the assessment module.
type Metrics struct {
	// Per-domain dispatch latencies
	DomainLatency *prometheus.HistogramVec

	// Assessment outcomes by status and decision
	Outcomes *prometheus.CounterVec

	// Overall request latency
	RequestLatency prometheus.Histogram

	// Cache lookups by result
	CacheLookups *prometheus.CounterVec

	// Requests currently being processed
	ActiveRequests prometheus.Gauge
}

// New creates a new Metrics instance with all assessment metrics registered.
func New() *Metrics {
	return &Metrics{
		DomainLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustplane_assessment_domain_duration_seconds",
			Help:    "Duration of per-domain evaluations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"domain"}),

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustplane_assessment_outcomes_total",
			Help: "Total assessment outcomes by status and decision",
		}, []string{"status", "decision"}),

		RequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustplane_assessment_request_duration_seconds",
			Help:    "Duration of full assessment requests",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustplane_assessment_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error", "bypass"

		ActiveRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trustplane_assessment_active_requests",
			Help: "Assessments currently being processed",
		}),
	}
}

// ObserveDomainLatency records the duration of one domain evaluation.
func (m *Metrics) ObserveDomainLatency(domain string, d time.Duration) {
	if m != nil {
		m.DomainLatency.WithLabelValues(domain).Observe(d.Seconds())
	}
}

// IncrementOutcome records a terminal assessment outcome.
func (m *Metrics) IncrementOutcome(status, decision string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status, decision).Inc()
	}
}

// ObserveRequestLatency records the total request duration.
func (m *Metrics) ObserveRequestLatency(d time.Duration) {
	if m != nil {
		m.RequestLatency.Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// TrackActive increments the active gauge and returns the matching decrement.
func (m *Metrics) TrackActive() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveRequests.Inc()
	return func() { m.ActiveRequests.Dec() }
}
