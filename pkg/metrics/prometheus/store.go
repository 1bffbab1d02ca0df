package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/pagesweep/pkg/metrics"
)

// storeMetrics is the Prometheus implementation of block.Metrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewStoreMetrics creates backing store metrics shared by every store type.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() *storeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_store_operations_total",
				Help: "Total number of backing store operations by store type, operation and status",
			},
			[]string{"store_type", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "pagesweep_store_operation_duration_milliseconds",
				Help: "Duration of backing store operations in milliseconds",
				Buckets: []float64{
					0.1,  // memory
					1,    // local badger
					10,   // 10ms - fast object store round trips
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms
					1000, // 1s
					5000, // 5s - slow object store
				},
			},
			[]string{"store_type", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesweep_store_bytes_total",
				Help: "Total payload bytes moved to and from backing stores",
			},
			[]string{"store_type", "direction"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(storeType, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(storeType, operation, status).Inc()
	m.operationDuration.WithLabelValues(storeType, operation).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *storeMetrics) RecordBytes(storeType, direction string, bytes int) {
	if m == nil {
		return
	}
	m.bytesTransferred.WithLabelValues(storeType, direction).Add(float64(bytes))
}
