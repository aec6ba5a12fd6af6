package queue

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"svckit/internal/metrics"
	"svckit/internal/models"
)

const (
	// DefaultCapacity is used when a non-positive capacity is requested
	DefaultCapacity = 10000

	dropWarnInterval = 10 * time.Second
)

// BoundedQueue is a fixed-capacity FIFO between application goroutines and
// shipping workers. Producers never block: when the queue is full the newest
// record is dropped.
type BoundedQueue struct {
	items    chan *models.LogRecord
	dropped  atomic.Uint64
	warnGate *rate.Limiter
	logger   *log.Logger
	metrics  *metrics.Collector
}

// New creates a queue holding at most capacity records
func New(capacity int, logger *log.Logger, m *metrics.Collector) *BoundedQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &BoundedQueue{
		items:    make(chan *models.LogRecord, capacity),
		warnGate: rate.NewLimiter(rate.Every(dropWarnInterval), 1),
		logger:   logger,
		metrics:  m,
	}
}

// Enqueue adds rec without blocking. It reports whether the record was
// accepted; a false result is an intentional drop, not an error.
func (q *BoundedQueue) Enqueue(rec *models.LogRecord) bool {
	if rec == nil {
		return false
	}
	select {
	case q.items <- rec:
		q.metrics.RecordsEnqueued.Inc()
		return true
	default:
		total := q.dropped.Add(1)
		q.metrics.RecordsDropped.Inc()
		if q.logger != nil && q.warnGate.Allow() {
			q.logger.Printf("Warning: log shipping queue full (capacity %d), dropping records (%d dropped so far)", cap(q.items), total)
		}
		return false
	}
}

// Dequeue waits for the next record until ctx is done. The second result is
// false when no record arrived, which is how workers learn to re-check their
// flush deadline while idle.
func (q *BoundedQueue) Dequeue(ctx context.Context) (*models.LogRecord, bool) {
	select {
	case rec := <-q.items:
		return rec, true
	case <-ctx.Done():
		return nil, false
	}
}

// TryDequeue returns a queued record if one is immediately available
func (q *BoundedQueue) TryDequeue() (*models.LogRecord, bool) {
	select {
	case rec := <-q.items:
		return rec, true
	default:
		return nil, false
	}
}

// Len is the number of records currently queued
func (q *BoundedQueue) Len() int { return len(q.items) }

// Cap is the fixed capacity given at construction
func (q *BoundedQueue) Cap() int { return cap(q.items) }

// Dropped is the number of records rejected because the queue was full
func (q *BoundedQueue) Dropped() uint64 { return q.dropped.Load() }
