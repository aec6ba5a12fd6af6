package batch

import (
	"time"

	"svckit/internal/models"
)

const (
	DefaultSize    = 100
	DefaultTimeout = 5 * time.Second
)

// Trigger names the condition that made a batch due
type Trigger string

const (
	TriggerNone     Trigger = ""
	TriggerSize     Trigger = "size"
	TriggerTimeout  Trigger = "timeout"
	TriggerShutdown Trigger = "shutdown"
)

// Assembler accumulates records for a single worker and decides when they
// should be flushed. It is not safe for concurrent use; each worker owns one.
type Assembler struct {
	size    int
	timeout time.Duration

	records []*models.LogRecord
	started time.Time // arrival time of the first record in the current batch
}

// NewAssembler creates an assembler that flushes at size records or once the
// oldest record has waited timeout.
func NewAssembler(size int, timeout time.Duration) *Assembler {
	if size <= 0 {
		size = DefaultSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Assembler{
		size:    size,
		timeout: timeout,
		records: make([]*models.LogRecord, 0, size),
	}
}

// Add appends rec and reports whether the size threshold has been reached
func (a *Assembler) Add(rec *models.LogRecord, now time.Time) bool {
	if len(a.records) == 0 {
		a.started = now
	}
	a.records = append(a.records, rec)
	return len(a.records) >= a.size
}

// Due reports whether the batch should be flushed now and why.
// An empty batch is never due.
func (a *Assembler) Due(now time.Time) Trigger {
	switch {
	case len(a.records) == 0:
		return TriggerNone
	case len(a.records) >= a.size:
		return TriggerSize
	case now.Sub(a.started) >= a.timeout:
		return TriggerTimeout
	default:
		return TriggerNone
	}
}

// Remaining is how long until the current batch times out. It returns the
// full timeout for an empty batch and zero for one that is already due.
func (a *Assembler) Remaining(now time.Time) time.Duration {
	if len(a.records) == 0 {
		return a.timeout
	}
	left := a.timeout - now.Sub(a.started)
	if left < 0 {
		return 0
	}
	return left
}

// Take hands the accumulated records to the caller and resets the batch.
// The returned slice is no longer referenced by the assembler.
func (a *Assembler) Take() []*models.LogRecord {
	if len(a.records) == 0 {
		return nil
	}
	out := a.records
	a.records = make([]*models.LogRecord, 0, a.size)
	a.started = time.Time{}
	return out
}

// Len is the number of records waiting in the batch
func (a *Assembler) Len() int { return len(a.records) }

// Size is the configured flush threshold
func (a *Assembler) Size() int { return a.size }
