// Package metrics collects provenance counters in a private prometheus
// registry. The CLI is short-lived, so metrics are exported by writing the
// registry to a node_exporter textfile after each command.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"prov-go/internal/prov"
)

const namespace = "prov"

// Metrics implements prov.Metrics and the doctor problem gauge.
type Metrics struct {
	registry *prometheus.Registry

	datasetVersions    *prometheus.CounterVec
	activitiesAdded    prometheus.Counter
	activitiesRejected *prometheus.CounterVec
	doctorProblems     *prometheus.GaugeVec
	commandDuration    *prometheus.HistogramVec
	lastSuccess        prometheus.Gauge
}

// New creates a Metrics with all collectors registered.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		datasetVersions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_versions_total",
			Help:      "Dataset versions stored, by dataset slug.",
		}, []string{"slug"}),
		activitiesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_added_total",
			Help:      "Activities recorded.",
		}),
		activitiesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_rejected_total",
			Help:      "Activities rejected, by reason.",
		}, []string{"reason"}),
		doctorProblems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "doctor_problems",
			Help:      "Problems found by the last run of each consistency check.",
		}, []string{"check"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of CLI commands.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"command", "status"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful command.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.datasetVersions,
		m.activitiesAdded,
		m.activitiesRejected,
		m.doctorProblems,
		m.commandDuration,
		m.lastSuccess,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) DatasetVersionAdded(slug string) {
	m.datasetVersions.WithLabelValues(slug).Inc()
}

func (m *Metrics) ActivityAdded() {
	m.activitiesAdded.Inc()
}

func (m *Metrics) ActivityRejected(reason string) {
	m.activitiesRejected.WithLabelValues(reason).Inc()
}

// DoctorProblems records how many problems a check found. It matches the
// doctor runner's result hook.
func (m *Metrics) DoctorProblems(check string, problems int) {
	m.doctorProblems.WithLabelValues(check).Set(float64(problems))
}

// CommandFinished records the duration and outcome of a command.
func (m *Metrics) CommandFinished(command string, took time.Duration, err error, now time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		m.lastSuccess.Set(float64(now.Unix()))
	}
	m.commandDuration.WithLabelValues(command, status).Observe(took.Seconds())
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Compile-time check
var _ prov.Metrics = (*Metrics)(nil)
