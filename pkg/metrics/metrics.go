// Package metrics exposes Prometheus collectors for allocations and saves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Save outcomes used as the "result" label.
const (
	SaveStored  = "stored"
	SaveSkipped = "skipped"
	SaveFailed  = "failed"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	allocations *prometheus.CounterVec
	wraps       *prometheus.CounterVec
	saves       *prometheus.CounterVec
	savedBytes  *prometheus.CounterVec
	saveLatency prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterfs_allocations_total",
				Help: "Number of directory slots handed out",
			},
			[]string{"bucket"},
		),
		wraps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterfs_cluster_wraps_total",
				Help: "Number of times the top directory level cycled back to 1",
			},
			[]string{"bucket"},
		),
		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterfs_saves_total",
				Help: "Attachment saves by outcome",
			},
			[]string{"kind", "result"},
		),
		savedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterfs_saved_bytes_total",
				Help: "Bytes written by attachment saves",
			},
			[]string{"kind"},
		),
		saveLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "clusterfs_save_seconds",
				Help: "Time spent in the attachment save pipeline",
				Buckets: []float64{
					(1 * time.Millisecond).Seconds(),
					(5 * time.Millisecond).Seconds(),
					(25 * time.Millisecond).Seconds(),
					(100 * time.Millisecond).Seconds(),
					(500 * time.Millisecond).Seconds(),
					(2 * time.Second).Seconds(),
				},
			},
		),
	}

	reg.MustRegister(m.allocations, m.wraps, m.saves, m.savedBytes, m.saveLatency)
	return m
}

// ObserveAllocation counts one allocation for bucket.
func (m *Metrics) ObserveAllocation(bucket string, wrapped bool) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(bucket).Inc()
	if wrapped {
		m.wraps.WithLabelValues(bucket).Inc()
	}
}

// ObserveSave records the outcome of one save call.
func (m *Metrics) ObserveSave(kind, result string, written int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(kind, result).Inc()
	if written > 0 {
		m.savedBytes.WithLabelValues(kind).Add(float64(written))
	}
	m.saveLatency.Observe(elapsed.Seconds())
}
