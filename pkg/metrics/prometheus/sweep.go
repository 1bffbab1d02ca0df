// Package prometheus implements the component metrics interfaces on top of
// the registry owned by pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/pagesweep/pkg/metrics"
	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

func init() {
	metrics.RegisterSweepMetricsConstructor(func() sweep.Metrics { return NewSweepMetrics() })
	metrics.RegisterWritebackMetricsConstructor(func() writeback.Metrics { return NewWritebackMetrics() })
	metrics.RegisterStoreMetricsConstructor(func() block.Metrics { return NewStoreMetrics() })
}

// sweepMetrics is the Prometheus implementation of sweep.Metrics.
type sweepMetrics struct {
	phaseDuration *prometheus.HistogramVec
	sweeps        *prometheus.CounterVec
	visited       *prometheus.CounterVec
	pagesDropped  *prometheus.CounterVec
	failures      *prometheus.CounterVec
	events        *prometheus.CounterVec
}

// NewSweepMetrics creates a new Prometheus-backed sweep.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSweepMetrics() *sweepMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &sweepMetrics{
		phaseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "pagesweep_phase_duration_microseconds",
				Help: "Duration of sweep phases in microseconds",
				Buckets: []float64{
					10,      // drain of idle batches
					100,     // small mappings
					1000,    // 1ms
					10000,   // 10ms
					100000,  // 100ms - large page caches
					1000000, // 1s - strict sweeps waiting on writeback
					10000000,
				},
			},
			[]string{"phase"}, // "drain", "pagecache", "bdev", "slab"
		),
		sweeps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_sweeps_total",
				Help: "Total number of sweeps by policy",
			},
			[]string{"policy"},
		),
		visited: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_inodes_visited_total",
				Help: "Total number of inodes invalidated by sweeps",
			},
			[]string{"policy"},
		),
		pagesDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_pages_dropped_total",
				Help: "Total number of cached pages dropped by sweeps",
			},
			[]string{"policy"},
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_inode_failures_total",
				Help: "Total number of inodes whose invalidation failed",
			},
			[]string{"policy"},
		),
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_vm_events_total",
				Help: "drop_caches vm events",
			},
			[]string{"event"}, // "drop_pagecache", "drop_slab"
		),
	}
}

func (m *sweepMetrics) ObservePhase(phase sweep.Phase, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(string(phase)).Observe(float64(d.Microseconds()))
}

func (m *sweepMetrics) RecordSweep(policy sweep.Policy, visited, dropped, failures int) {
	if m == nil {
		return
	}
	p := policy.String()
	m.sweeps.WithLabelValues(p).Inc()
	m.visited.WithLabelValues(p).Add(float64(visited))
	m.pagesDropped.WithLabelValues(p).Add(float64(dropped))
	m.failures.WithLabelValues(p).Add(float64(failures))
}

func (m *sweepMetrics) RecordEvent(event sweep.Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(event)).Inc()
}
