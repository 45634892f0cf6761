package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the counters of one pipeline run. It uses its own
// registry so a run can be written to a node_exporter textfile.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EmailsAnnotated  *prometheus.CounterVec
	RepliesGenerated *prometheus.CounterVec
	ExternalFailures *prometheus.CounterVec
	ExternalLatency  *prometheus.HistogramVec
	RunDuration      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EmailsAnnotated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_emails_annotated_total",
				Help: "Total number of emails annotated",
			},
			[]string{"urgency", "topic", "sentiment"},
		),

		RepliesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_replies_generated_total",
				Help: "Total number of summaries and replies generated",
			},
			[]string{"source"}, // source: external, template
		),

		ExternalFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_external_failures_total",
				Help: "External text-generation calls that fell back to templates",
			},
			[]string{"error_type"},
		),

		ExternalLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_external_call_latency_ms",
				Help:    "External text-generation call latency in milliseconds",
				Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
			},
			[]string{"status"},
		),

		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "triage_run_duration_seconds",
			Help: "Wall time of the last pipeline run",
		}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "triage_last_run_timestamp_seconds",
			Help: "Unix time the last pipeline run finished",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordAnnotation counts one annotated email
func (m *Metrics) RecordAnnotation(urgency, topic, sentiment string) {
	if m == nil {
		return
	}
	m.EmailsAnnotated.WithLabelValues(urgency, topic, sentiment).Inc()
}

// RecordReply counts one generated summary/reply pair by source
func (m *Metrics) RecordReply(source string) {
	if m == nil {
		return
	}
	m.RepliesGenerated.WithLabelValues(source).Inc()
}

// RecordExternalCall observes the latency of one external call
func (m *Metrics) RecordExternalCall(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExternalLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordExternalFailure counts one external failure by type
func (m *Metrics) RecordExternalFailure(errorType string) {
	if m == nil {
		return
	}
	m.ExternalFailures.WithLabelValues(errorType).Inc()
}

// RecordRun sets the run duration and completion time
func (m *Metrics) RecordRun(duration time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Set(duration.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile writes all metrics in the Prometheus text format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
