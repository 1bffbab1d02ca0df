package metrics

import (
	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

// The Prometheus implementations live in pkg/metrics/prometheus, which
// registers them here from init. Importing it for side effects is what
// turns these constructors on:
//
//	import _ "github.com/marmos91/pagesweep/pkg/metrics/prometheus"
var (
	newSweepMetrics     func() sweep.Metrics
	newWritebackMetrics func() writeback.Metrics
	newStoreMetrics     func() block.Metrics
)

// RegisterSweepMetricsConstructor is called by the prometheus package at init.
func RegisterSweepMetricsConstructor(fn func() sweep.Metrics) { newSweepMetrics = fn }

// RegisterWritebackMetricsConstructor is called by the prometheus package at init.
func RegisterWritebackMetricsConstructor(fn func() writeback.Metrics) { newWritebackMetrics = fn }

// RegisterStoreMetricsConstructor is called by the prometheus package at init.
func RegisterStoreMetricsConstructor(fn func() block.Metrics) { newStoreMetrics = fn }

// NewSweepMetrics returns sweep metrics, or nil when metrics are disabled.
//
//	metrics.InitRegistry()
//	engine := sweep.New(mounts, hooks, metrics.NewSweepMetrics(), cfg)
func NewSweepMetrics() sweep.Metrics {
	if !IsEnabled() || newSweepMetrics == nil {
		return nil
	}
	return newSweepMetrics()
}

// NewWritebackMetrics returns writeback metrics, or nil when metrics are
// disabled.
func NewWritebackMetrics() writeback.Metrics {
	if !IsEnabled() || newWritebackMetrics == nil {
		return nil
	}
	return newWritebackMetrics()
}

// NewStoreMetrics returns backing store metrics, or nil when metrics are
// disabled. Pass the result to block.Instrument.
func NewStoreMetrics() block.Metrics {
	if !IsEnabled() || newStoreMetrics == nil {
		return nil
	}
	return newStoreMetrics()
}
