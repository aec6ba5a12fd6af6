package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "svckit"

// Collector holds the log pipeline's Prometheus instruments.
// Every component receives the same Collector so counts line up across stages.
type Collector struct {
	RecordsEnqueued prometheus.Counter
	RecordsDropped  prometheus.Counter
	RecordsSkipped  prometheus.Counter
	RecordsShipped  prometheus.Counter
	BatchesFlushed  *prometheus.CounterVec // label: trigger (size, timeout, shutdown)
	BatchesFailed   prometheus.Counter
	SendAttempts    *prometheus.CounterVec // label: result (ok, error)
	BatchSize       prometheus.Histogram
	SendDuration    prometheus.Histogram
}

// New builds a Collector under namespace and registers it with reg.
// A nil reg leaves the instruments unregistered, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	c := &Collector{
		RecordsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "records_enqueued_total",
			Help:      "Log records accepted into the shipping queue",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "records_dropped_total",
			Help:      "Log records dropped because the shipping queue was full",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "records_skipped_total",
			Help:      "Log records left out of a batch because they could not be serialized",
		}),
		RecordsShipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "records_shipped_total",
			Help:      "Log records delivered to the remote sink",
		}),
		BatchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "batches_flushed_total",
			Help:      "Batches handed to the sink, by flush trigger",
		}, []string{"trigger"}),
		BatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "batches_failed_total",
			Help:      "Batches dropped after exhausting send retries",
		}),
		SendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "send_attempts_total",
			Help:      "Transport calls made by the shipper, by result",
		}, []string{"result"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "batch_size_records",
			Help:      "Number of records per flushed batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "logship",
			Name:      "send_duration_seconds",
			Help:      "Wall time spent delivering one batch, retries included",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.RecordsEnqueued,
			c.RecordsDropped,
			c.RecordsSkipped,
			c.RecordsShipped,
			c.BatchesFlushed,
			c.BatchesFailed,
			c.SendAttempts,
			c.BatchSize,
			c.SendDuration,
		)
		for _, trigger := range []string{"size", "timeout", "shutdown"} {
			c.BatchesFlushed.WithLabelValues(trigger).Add(0)
		}
		c.SendAttempts.WithLabelValues("ok").Add(0)
		c.SendAttempts.WithLabelValues("error").Add(0)
	}
	return c
}

// Discard returns an unregistered Collector for components built without one
func Discard() *Collector {
	return New("", nil)
}
