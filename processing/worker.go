package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"svckit/internal/batch"
	"svckit/internal/metrics"
	"svckit/internal/models"
	"svckit/internal/queue"
)

const (
	DefaultWorkerCount  = 2
	DefaultPollInterval = time.Second
)

// Sender delivers one batch. Errors are reported and the batch is dropped;
// the pool never retries on its own.
type Sender interface {
	Send(ctx context.Context, batch []*models.LogRecord) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, batch []*models.LogRecord) error

func (f SenderFunc) Send(ctx context.Context, b []*models.LogRecord) error { return f(ctx, b) }

// Config sizes the pool
type Config struct {
	WorkerCount  int
	BatchSize    int
	BatchTimeout time.Duration
	PollInterval time.Duration // Upper bound on a single idle dequeue wait
}

// Pool runs WorkerCount goroutines that pull records off the queue, group
// them into batches and hand full or expired batches to the Sender.
type Pool struct {
	cfg     Config
	queue   *queue.BoundedQueue
	sender  Sender
	logger  *log.Logger
	metrics *metrics.Collector
}

// New creates a Pool instance
func New(cfg Config, q *queue.BoundedQueue, s Sender, logger *log.Logger, m *metrics.Collector) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batch.DefaultSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = batch.DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Pool{
		cfg:     cfg,
		queue:   q,
		sender:  s,
		logger:  logger,
		metrics: m,
	}
}

// Run starts the workers and blocks until all of them have exited.
// Cancelling ctx is the shutdown signal: every worker drains what is left in
// the queue, flushes its final partial batch and returns.
func (p *Pool) Run(ctx context.Context) {
	p.printf("Starting log shipping workers, concurrency: %d, BatchSize: %d, BatchTimeout: %s",
		p.cfg.WorkerCount, p.cfg.BatchSize, p.cfg.BatchTimeout)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.processRecords(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	p.printf("Log shipping workers stopped.")
}

// processRecords is the main loop for a worker goroutine
func (p *Pool) processRecords(ctx context.Context, workerID int) {
	asm := batch.NewAssembler(p.cfg.BatchSize, p.cfg.BatchTimeout)
	// In-flight and final sends outlive the shutdown signal
	sendCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			p.drain(sendCtx, workerID, asm)
			return
		}

		wait := p.cfg.PollInterval
		if left := asm.Remaining(time.Now()); left < wait {
			wait = left
		}
		pollCtx, cancel := context.WithTimeout(ctx, wait)
		rec, ok := p.queue.Dequeue(pollCtx)
		cancel()

		now := time.Now()
		if ok {
			asm.Add(rec, now)
		}
		if trigger := asm.Due(now); trigger != batch.TriggerNone {
			p.flush(sendCtx, workerID, asm, trigger)
		}
	}
}

// drain empties the queue without blocking, flushing every batch that fills
// up, then flushes whatever is left.
func (p *Pool) drain(ctx context.Context, workerID int, asm *batch.Assembler) {
	drained := 0
	for {
		rec, ok := p.queue.TryDequeue()
		if !ok {
			break
		}
		drained++
		if asm.Add(rec, time.Now()) {
			p.flush(ctx, workerID, asm, batch.TriggerSize)
		}
	}
	if drained > 0 || asm.Len() > 0 {
		p.printf("Worker %d: shutting down, drained %d queued records", workerID, drained)
	}
	p.flush(ctx, workerID, asm, batch.TriggerShutdown)
}

// flush hands the current batch to the sender. A failing or panicking sender
// costs the batch, never the worker.
func (p *Pool) flush(ctx context.Context, workerID int, asm *batch.Assembler, trigger batch.Trigger) {
	records := asm.Take()
	if len(records) == 0 {
		return
	}
	p.metrics.BatchesFlushed.WithLabelValues(string(trigger)).Inc()
	p.metrics.BatchSize.Observe(float64(len(records)))

	if err := p.safeSend(ctx, records); err != nil {
		p.printf("Worker %d: batch of %d records (%s flush) failed: %v", workerID, len(records), trigger, err)
	}
}

func (p *Pool) safeSend(ctx context.Context, records []*models.LogRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return p.sender.Send(ctx, records)
}

func (p *Pool) printf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
