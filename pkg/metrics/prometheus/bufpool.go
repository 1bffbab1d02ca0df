package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/pagesweep/pkg/bufpool"
	"github.com/marmos91/pagesweep/pkg/metrics"
)

// bufpoolCollector exports the page buffer pool counters at scrape time.
type bufpoolCollector struct {
	stats     func() bufpool.Stats
	gets      *prometheus.Desc
	puts      *prometheus.Desc
	allocs    *prometheus.Desc
	oversized *prometheus.Desc
}

// RegisterBufferPool exports the process-wide page buffer pool. It is a
// no-op when metrics are disabled.
func RegisterBufferPool() error {
	return registerBufferPool(bufpool.GlobalStats)
}

func registerBufferPool(stats func() bufpool.Stats) error {
	if !metrics.IsEnabled() {
		return nil
	}
	c := &bufpoolCollector{
		stats: stats,
		gets: prometheus.NewDesc("pagesweep_page_buffers_gets_total",
			"Page buffers taken from the pool", nil, nil),
		puts: prometheus.NewDesc("pagesweep_page_buffers_puts_total",
			"Page buffers returned to the pool by dropped pages", nil, nil),
		allocs: prometheus.NewDesc("pagesweep_page_buffers_allocs_total",
			"Page buffers allocated because the pool was empty", nil, nil),
		oversized: prometheus.NewDesc("pagesweep_page_buffers_oversized_total",
			"Buffer requests above the largest size class", nil, nil),
	}
	return metrics.GetRegistry().Register(c)
}

func (c *bufpoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.gets
	ch <- c.puts
	ch <- c.allocs
	ch <- c.oversized
}

func (c *bufpoolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.gets, prometheus.CounterValue, float64(st.Gets))
	ch <- prometheus.MustNewConstMetric(c.puts, prometheus.CounterValue, float64(st.Puts))
	ch <- prometheus.MustNewConstMetric(c.allocs, prometheus.CounterValue, float64(st.Allocs))
	ch <- prometheus.MustNewConstMetric(c.oversized, prometheus.CounterValue, float64(st.Oversized))
}
