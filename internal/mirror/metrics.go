package mirror

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the per-task sink a ReplicationTask reports through. It is
// owned exclusively by the task; reporters (here, a Prometheus registry)
// are registered externally.
type Metrics interface {
	RecordAge(tp TopicPartition, ms int64)
	RecordBytes(tp TopicPartition, n int)
	CountRecord(tp TopicPartition)
	ReplicationLatency(tp TopicPartition, ms int64)
	Close()
}

// PromMetrics fans per-partition counters, latencies, and byte volumes
// into a Prometheus registry for scraping.
type PromMetrics struct {
	registry *prometheus.Registry

	recordAge   *prometheus.GaugeVec
	recordBytes *prometheus.CounterVec
	recordCount *prometheus.CounterVec
	replLatency *prometheus.HistogramVec
}

// NewPromMetrics registers a fresh set of collectors, labeled by the
// source and target cluster aliases, on the given registry.
func NewPromMetrics(registry *prometheus.Registry, sourceAlias, targetAlias string) *PromMetrics {
	labels := prometheus.Labels{"source": sourceAlias, "target": targetAlias}

	m := &PromMetrics{
		registry: registry,
		recordAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "kmirror",
			Name:        "record_age_ms",
			Help:        "Age of the most recently polled record, in milliseconds.",
			ConstLabels: labels,
		}, []string{"topic", "partition"}),
		recordBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kmirror",
			Name:        "record_bytes_total",
			Help:        "Total bytes of polled record values.",
			ConstLabels: labels,
		}, []string{"topic", "partition"}),
		recordCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kmirror",
			Name:        "records_total",
			Help:        "Total records committed to the target.",
			ConstLabels: labels,
		}, []string{"topic", "partition"}),
		replLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "kmirror",
			Name:        "replication_latency_ms",
			Help:        "End-to-end latency between source timestamp and target ack.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"topic", "partition"}),
	}

	registry.MustRegister(m.recordAge, m.recordBytes, m.recordCount, m.replLatency)
	return m
}

func (m *PromMetrics) RecordAge(tp TopicPartition, ms int64) {
	m.recordAge.WithLabelValues(tp.Topic, partitionLabel(tp)).Set(float64(ms))
}

func (m *PromMetrics) RecordBytes(tp TopicPartition, n int) {
	m.recordBytes.WithLabelValues(tp.Topic, partitionLabel(tp)).Add(float64(n))
}

func (m *PromMetrics) CountRecord(tp TopicPartition) {
	m.recordCount.WithLabelValues(tp.Topic, partitionLabel(tp)).Inc()
}

func (m *PromMetrics) ReplicationLatency(tp TopicPartition, ms int64) {
	m.replLatency.WithLabelValues(tp.Topic, partitionLabel(tp)).Observe(float64(ms))
}

func partitionLabel(tp TopicPartition) string {
	return strconv.FormatInt(int64(tp.Partition), 10)
}

// Close unregisters the task's collectors so a restarted task with the
// same labels doesn't collide with the old instance's.
func (m *PromMetrics) Close() {
	m.registry.Unregister(m.recordAge)
	m.registry.Unregister(m.recordBytes)
	m.registry.Unregister(m.recordCount)
	m.registry.Unregister(m.replLatency)
}

// NoopMetrics discards everything; useful for tests that don't care about
// metrics wiring.
type NoopMetrics struct{}

func (NoopMetrics) RecordAge(TopicPartition, int64)          {}
func (NoopMetrics) RecordBytes(TopicPartition, int)          {}
func (NoopMetrics) CountRecord(TopicPartition)               {}
func (NoopMetrics) ReplicationLatency(TopicPartition, int64) {}
func (NoopMetrics) Close()                                   {}
