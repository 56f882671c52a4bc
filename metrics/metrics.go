// Package metrics exposes prometheus collectors for the monitor loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shardsync"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cycles       *prometheus.CounterVec
	cycleSeconds prometheus.Histogram
	events       *prometheus.CounterVec
	writes       *prometheus.CounterVec
	snapshotRows prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result (ok, error).",
		}, []string{"result"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a poll/diff/dispatch cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Change events detected, by kind.",
		}, []string{"kind"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_writes_total",
			Help:      "Target writes by target and status.",
		}, []string{"target", "status"}),
		snapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      "Rows in the installed baseline snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{m.cycles, m.cycleSeconds, m.events, m.writes, m.snapshotRows} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleSeconds.Observe(d.Seconds())
}

// ObserveEvent records one detected change event.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// ObserveWrite records the outcome of one target write.
func (m *Metrics) ObserveWrite(target, status string) {
	if m == nil {
		return
	}
	if target == "" {
		target = "none"
	}
	m.writes.WithLabelValues(target, status).Inc()
}

// SetSnapshotRows sets the baseline size.
func (m *Metrics) SetSnapshotRows(n int) {
	if m == nil {
		return
	}
	m.snapshotRows.Set(float64(n))
}
