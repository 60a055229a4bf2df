// Package metrics exposes Prometheus counters for backend writes, migration
// and export. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "depmsg"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeMigrated  = "migrated"
	OutcomeSkipped   = "skipped"
	OutcomeExists    = "exists"
)

type Metrics struct {
	registry *prometheus.Registry

	writes    *prometheus.CounterVec
	migration *prometheus.CounterVec
	exports   *prometheus.CounterVec
	partial   prometheus.Counter
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_writes_total",
			Help:      "Backend write attempts by target, operation and outcome.",
		}, []string{"target", "op", "outcome"}),
		migration: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_records_total",
			Help:      "Records processed by the migrator by outcome.",
		}, []string{"outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Deposition exports by outcome.",
		}, []string{"outcome"}),
		partial: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_writes_total",
			Help:      "Dual writes that reached only some targets.",
		}),
	}
	reg.MustRegister(m.writes, m.migration, m.exports, m.partial)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Write(target, op, outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(target, op, outcome).Inc()
}

func (m *Metrics) PartialWrite() {
	if m == nil {
		return
	}
	m.partial.Inc()
}

func (m *Metrics) Migration(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.migration.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Export(outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
// It is a no-op for a nil receiver or an empty path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
