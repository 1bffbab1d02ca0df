package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/pagesweep/pkg/metrics"
)

// CacheStatter reports block cache hits and misses, as the badger store does.
type CacheStatter interface {
	CacheStats() (hits, misses uint64)
}

// badgerCollector exports a badger store's block cache counters, read at
// scrape time.
type badgerCollector struct {
	fs     string
	store  CacheStatter
	hits   *prometheus.Desc
	misses *prometheus.Desc
	ratio  *prometheus.Desc
}

// RegisterBadgerStore exports the cache counters of the badger store behind
// filesystem fs. It is a no-op when metrics are disabled.
func RegisterBadgerStore(fs string, store CacheStatter) error {
	if !metrics.IsEnabled() {
		return nil
	}
	labels := prometheus.Labels{"fs": fs}
	c := &badgerCollector{
		fs:    fs,
		store: store,
		hits: prometheus.NewDesc("pagesweep_badger_cache_hits_total",
			"Total number of BadgerDB block cache hits", nil, labels),
		misses: prometheus.NewDesc("pagesweep_badger_cache_misses_total",
			"Total number of BadgerDB block cache misses", nil, labels),
		ratio: prometheus.NewDesc("pagesweep_badger_cache_hit_ratio",
			"BadgerDB block cache hit ratio (0.0 to 1.0)", nil, labels),
	}
	return metrics.GetRegistry().Register(c)
}

func (c *badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.ratio
}

func (c *badgerCollector) Collect(ch chan<- prometheus.Metric) {
	hits, misses := c.store.CacheStats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(misses))

	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	ch <- prometheus.MustNewConstMetric(c.ratio, prometheus.GaugeValue, ratio)
}
