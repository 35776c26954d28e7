// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts monitoring activity for the Prometheus endpoint.
type Metrics struct {
	Cycles        prometheus.Counter
	CycleFailures prometheus.Counter
	Anomalies     *prometheus.CounterVec
	Cascades      *prometheus.CounterVec
	Actuations    *prometheus.CounterVec
}

// NewMetrics creates and registers the monitoring metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_cycles_total",
			Help: "Analysis cycles started.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_cycle_failures_total",
			Help: "Analysis cycles that could not enumerate sectors.",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_anomalies_total",
			Help: "Anomalous points detected.",
		}, []string{"sector", "metric"}),
		Cascades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_cascades_total",
			Help: "Cascades detected.",
		}, []string{"sector", "direction"}),
		Actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_actuations_total",
			Help: "Valve actuation decisions.",
		}, []string{"sector", "result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Cycles,
			m.CycleFailures,
			m.Anomalies,
			m.Cascades,
			m.Actuations,
		)
	}
	return m
}

// Actuation result labels.
const (
	resultActuated = "actuated"
	resultNoAction = "no_action"
	resultFailed   = "failed"
)

func (m *Metrics) cycle() {
	if m != nil {
		m.Cycles.Inc()
	}
}

func (m *Metrics) cycleFailure() {
	if m != nil {
		m.CycleFailures.Inc()
	}
}

func (m *Metrics) anomalies(sector, metric string, n int) {
	if m != nil && n > 0 {
		m.Anomalies.WithLabelValues(sector, metric).Add(float64(n))
	}
}

func (m *Metrics) cascade(sector, direction string) {
	if m != nil {
		m.Cascades.WithLabelValues(sector, direction).Inc()
	}
}

func (m *Metrics) actuation(sector, result string) {
	if m != nil {
		m.Actuations.WithLabelValues(sector, result).Inc()
	}
}
