package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/bufpool"
	"github.com/marmos91/pagesweep/pkg/metrics"
	"github.com/marmos91/pagesweep/pkg/sweep"
)

func enable(t *testing.T) {
	t.Helper()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)
}

func TestDisabledReturnsNil(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, NewSweepMetrics())
	assert.Nil(t, NewWritebackMetrics())
	assert.Nil(t, NewStoreMetrics())
	assert.NoError(t, RegisterBadgerStore("data", nil))

	// Nil receivers are safe.
	var m *sweepMetrics
	m.RecordEvent(sweep.EventDropSlab)
}

func TestConstructorsRegistered(t *testing.T) {
	enable(t)
	assert.NotNil(t, metrics.NewSweepMetrics())
	assert.NotNil(t, metrics.NewWritebackMetrics())
	assert.NotNil(t, metrics.NewStoreMetrics())
}

func TestSweepMetrics(t *testing.T) {
	enable(t)
	m := NewSweepMetrics()
	require.NotNil(t, m)

	m.RecordSweep(sweep.Strict, 4, 10, 1)
	m.RecordSweep(sweep.Strict, 1, 2, 0)
	m.RecordEvent(sweep.EventDropPagecache)
	m.ObservePhase(sweep.PhaseBdev, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweeps.WithLabelValues("strict")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.pagesDropped.WithLabelValues("strict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("strict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("drop_pagecache")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.phaseDuration))
}

func TestStoreAndWritebackMetrics(t *testing.T) {
	enable(t)
	s := NewStoreMetrics()
	s.ObserveOperation("s3", "write", time.Millisecond, nil)
	s.ObserveOperation("s3", "write", time.Millisecond, errors.New("boom"))
	s.RecordBytes("s3", "write", 4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.operationsTotal.WithLabelValues("s3", "write", "error")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(s.bytesTransferred.WithLabelValues("s3", "write")))

	w := NewWritebackMetrics()
	w.ObservePass(7, 1, 2*time.Millisecond)
	assert.Equal(t, 7.0, testutil.ToFloat64(w.pages))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.passes))
}

type fakeCache struct{ hits, misses uint64 }

func (f fakeCache) CacheStats() (uint64, uint64) { return f.hits, f.misses }

func TestBadgerCollector(t *testing.T) {
	enable(t)
	require.NoError(t, RegisterBadgerStore("data", fakeCache{hits: 3, misses: 1}))

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)

	found := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				found[f.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				found[f.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, found["pagesweep_badger_cache_hits_total"])
	assert.Equal(t, 0.75, found["pagesweep_badger_cache_hit_ratio"])

	assert.Error(t, RegisterBadgerStore("data", fakeCache{}), "duplicate registration")
}

func TestBufferPoolCollector(t *testing.T) {
	enable(t)
	require.NoError(t, registerBufferPool(func() bufpool.Stats {
		return bufpool.Stats{Gets: 10, Puts: 7, Allocs: 3}
	}))

	n, err := testutil.GatherAndCount(metrics.GetRegistry(),
		"pagesweep_page_buffers_gets_total", "pagesweep_page_buffers_allocs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
