package vault

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "strongbox_vault"

// Collector is a prometheus.Collector that collects metrics about credential vault
// operations.
type Collector struct {
	fetchOutcomes    *prometheus.CounterVec
	rotationOutcomes *prometheus.CounterVec
	rotationDuration prometheus.Histogram
	auditFailures    prometheus.Counter
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		fetchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fetch_total",
				Help:      "Credential fetches by outcome. Denied fetches carry the denial reason.",
			}, []string{"outcome", "reason"},
		),
		rotationOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rotation_total",
				Help:      "Credential rotation attempts by trigger and outcome.",
			}, []string{"trigger", "outcome"},
		),
		rotationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "rotation_duration_seconds",
				Help:      "Time taken by one credential rotation.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		auditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "audit_write_failures_total",
				Help:      "Audit entries which could not be recorded.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.fetchOutcomes.Describe(ch)
	c.rotationOutcomes.Describe(ch)
	c.rotationDuration.Describe(ch)
	c.auditFailures.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.fetchOutcomes.Collect(ch)
	c.rotationOutcomes.Collect(ch)
	c.rotationDuration.Collect(ch)
	c.auditFailures.Collect(ch)
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// FetchOutcomes fetch outcome counters
func (c *Collector) FetchOutcomes() *prometheus.CounterVec {
	return c.fetchOutcomes
}

// RotationOutcomes rotation outcome counters
func (c *Collector) RotationOutcomes() *prometheus.CounterVec {
	return c.rotationOutcomes
}

// AuditFailures audit write failure counter
func (c *Collector) AuditFailures() prometheus.Counter {
	return c.auditFailures
}
