package posts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments store operations. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	corrupt    prometheus.Counter
}

// NewMetrics creates the store metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "post_store",
			Name:      "operations_total",
			Help:      "Post store operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quill",
			Subsystem: "post_store",
			Name:      "operation_duration_seconds",
			Help:      "Post store operation latency, including simulated latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "post_store",
			Name:      "corrupt_reads_total",
			Help:      "Reads that found an undecodable stored collection.",
		}),
	}
	reg.MustRegister(m.operations, m.duration, m.corrupt)
	return m
}

// observe starts timing op; the returned func records the outcome.
func (m *Metrics) observe(op string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.operations.WithLabelValues(op, result).Inc()
		m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) corruptRead() {
	if m == nil {
		return
	}
	m.corrupt.Inc()
}
