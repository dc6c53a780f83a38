package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the stream node
type Metrics struct {
	// Record operation metrics
	PutRecordsTotal    prometheus.Counter
	PutRecordDuration  prometheus.Histogram
	PutRecordBytes     prometheus.Histogram
	GetRecordsTotal    prometheus.Counter
	GetRecordsDuration prometheus.Histogram
	RecordsReturned    prometheus.Histogram

	// Iterator metrics
	IteratorsIssuedTotal  *prometheus.CounterVec
	ExpiredIteratorsTotal prometheus.Counter

	// Registry metrics
	StreamsActive prometheus.Gauge
	RecordsStored prometheus.Gauge

	// HTTP front end metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics
	MemoryUsageBytes prometheus.Gauge
	GoroutinesTotal  prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(nodeID string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	factory := promauto.With(reg)

	return &Metrics{
		PutRecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "put_records_total",
			Help:        "Total number of records appended",
			ConstLabels: labels,
		}),
		PutRecordDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "put_record_duration_seconds",
			Help:        "Histogram of record append durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		PutRecordBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "put_record_bytes",
			Help:        "Histogram of record payload sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(256, 2, 10), // 256B to 128KB
		}),
		GetRecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "get_records_total",
			Help:        "Total number of GetRecords calls",
			ConstLabels: labels,
		}),
		GetRecordsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "get_records_duration_seconds",
			Help:        "Histogram of GetRecords durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		RecordsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "records_returned",
			Help:        "Histogram of records returned per GetRecords call",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
		}),

		IteratorsIssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "iterators_issued_total",
			Help:        "Total number of shard iterators issued by type",
			ConstLabels: labels,
		}, []string{"iterator_type"}),
		ExpiredIteratorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "streamdb",
			Subsystem:   "engine",
			Name:        "expired_iterators_total",
			Help:        "Total number of GetRecords calls rejected for expired iterators",
			ConstLabels: labels,
		}),

		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "streamdb",
			Subsystem:   "registry",
			Name:        "streams_active",
			Help:        "Number of streams currently registered",
			ConstLabels: labels,
		}),
		RecordsStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "streamdb",
			Subsystem:   "registry",
			Name:        "records_stored",
			Help:        "Total records held across all streams",
			ConstLabels: labels,
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "streamdb",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP API requests by operation and status code",
			ConstLabels: labels,
		}, []string{"operation", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "streamdb",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Histogram of HTTP API request durations by operation",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation"}),

		MemoryUsageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "streamdb",
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Current heap allocation in bytes",
			ConstLabels: labels,
		}),
		GoroutinesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "streamdb",
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Current number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// UpdateSystemStats updates the system-level gauges
func (m *Metrics) UpdateSystemStats(memoryBytes int64, goroutines int) {
	m.MemoryUsageBytes.Set(float64(memoryBytes))
	m.GoroutinesTotal.Set(float64(goroutines))
}
