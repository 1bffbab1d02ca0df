package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/pagesweep/pkg/metrics"
)

// writebackMetrics is the Prometheus implementation of writeback.Metrics.
type writebackMetrics struct {
	passes       prometheus.Counter
	pages        prometheus.Counter
	failures     prometheus.Counter
	passDuration prometheus.Histogram
}

// NewWritebackMetrics returns nil if metrics are not enabled.
func NewWritebackMetrics() *writebackMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &writebackMetrics{
		passes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pagesweep_writeback_passes_total",
			Help: "Total number of writeback passes",
		}),
		pages: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pagesweep_writeback_pages_total",
			Help: "Total number of pages written to backing stores",
		}),
		failures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pagesweep_writeback_failures_total",
			Help: "Total number of failed inode or device writebacks",
		}),
		passDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesweep_writeback_pass_duration_milliseconds",
			Help:    "Duration of writeback passes in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
	}
}

func (m *writebackMetrics) ObservePass(pages, failures int, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.pages.Add(float64(pages))
	m.failures.Add(float64(failures))
	m.passDuration.Observe(float64(d.Microseconds()) / 1000)
}
