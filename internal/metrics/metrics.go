// Package metrics exposes optimizer and study activity as Prometheus
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warpbench"

// Metrics records optimizer activity. It implements search.Recorder.
type Metrics struct {
	suggestions  *prometheus.CounterVec
	observations *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	attempts     *prometheus.HistogramVec
	studies      prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		suggestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Trials suggested, by optimizer.",
		}, []string{"optimizer"}),
		observations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Trials observed, by optimizer.",
		}, []string{"optimizer"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampling_exhausted_total",
			Help:      "Rejection-sampling loops that hit the attempt cap.",
		}, []string{"optimizer"}),
		attempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rejection_attempts",
			Help:      "Attempts needed to draw one unseen configuration.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"optimizer"}),
		studies: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "studies",
			Help:      "Studies currently held by the service.",
		}),
	}
}

// Suggested counts n suggested trials.
func (m *Metrics) Suggested(optimizer string, n int) {
	m.suggestions.WithLabelValues(optimizer).Add(float64(n))
}

// Observed counts n observed trials.
func (m *Metrics) Observed(optimizer string, n int) {
	m.observations.WithLabelValues(optimizer).Add(float64(n))
}

// SampleAttempts records the attempts of one rejection-sampling loop.
func (m *Metrics) SampleAttempts(optimizer string, attempts int) {
	m.attempts.WithLabelValues(optimizer).Observe(float64(attempts))
}

// Exhausted counts a sampling loop that gave up.
func (m *Metrics) Exhausted(optimizer string) {
	m.exhausted.WithLabelValues(optimizer).Inc()
}

// StudyCreated increments the study gauge.
func (m *Metrics) StudyCreated() {
	m.studies.Inc()
}

// StudyDeleted decrements the study gauge.
func (m *Metrics) StudyDeleted() {
	m.studies.Dec()
}
