// Package metrics exposes scoring counters to Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/mikey/threat-scorer/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "threat_scorer"

// Recorder implements core.MetricsRecorder on its own registry
type Recorder struct {
	registry       *prometheus.Registry
	analyzed       *prometheus.CounterVec
	duration       prometheus.Histogram
	signalFailures *prometheus.CounterVec
	filtered       *prometheus.CounterVec
}

// NewRecorder creates a Recorder and registers its collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		analyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzed_total",
			Help:      "Total number of emails analyzed, by verdict",
		}, []string{"verdict"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent analyzing one email",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		signalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_failures_total",
			Help:      "Signals that failed, timed out or panicked",
		}, []string{"signal"}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_messages_total",
			Help:      "Messages handled by the mail filter, by action",
		}, []string{"action"}),
	}
	r.registry.MustRegister(r.analyzed, r.duration, r.signalFailures, r.filtered)
	return r
}

// ObserveAnalysis implements core.MetricsRecorder
func (r *Recorder) ObserveAnalysis(verdict core.Verdict, duration time.Duration) {
	r.analyzed.WithLabelValues(string(verdict)).Inc()
	r.duration.Observe(duration.Seconds())
}

// SignalFailed implements core.MetricsRecorder
func (r *Recorder) SignalFailed(key core.SignalKey) {
	r.signalFailures.WithLabelValues(string(key)).Inc()
}

// FilterAction counts a mail filter decision ("accepted", "rejected", "failed")
func (r *Recorder) FilterAction(action string) {
	r.filtered.WithLabelValues(action).Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
