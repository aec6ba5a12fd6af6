package consumer

import (
	"context"
	"errors"
	"log"
	"sync"

	"svckit/internal/sink"
)

// ErrClosed is returned by Consume once the consumer is closed (and, for the
// mock, drained)
var ErrClosed = errors.New("consumer closed")

// MockConsumer replays entries from memory. NACKed entries are re-queued.
type MockConsumer struct {
	logger  *log.Logger
	entries chan *sink.Entry

	mu     sync.Mutex
	acked  int
	closed bool
}

// NewMockConsumer creates a MockConsumer preloaded with entries
func NewMockConsumer(logger *log.Logger, entries ...sink.Entry) *MockConsumer {
	mc := &MockConsumer{
		logger:  logger,
		entries: make(chan *sink.Entry, len(entries)+16),
	}
	for i := range entries {
		e := entries[i]
		mc.entries <- &e
	}
	return mc
}

// Consume reads the next preloaded entry
func (m *MockConsumer) Consume(ctx context.Context) (*sink.Entry, func(success bool), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case e, ok := <-m.entries:
		if !ok {
			return nil, nil, ErrClosed
		}
		ack := func(success bool) {
			if success {
				m.mu.Lock()
				m.acked++
				m.mu.Unlock()
				return
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.closed {
				return
			}
			select {
			case m.entries <- e:
			default:
				if m.logger != nil {
					m.logger.Printf("[MockConsumer] Warning: Failed to re-queue entry (channel full?): trace_id=%s", e.TraceID())
				}
			}
		}
		return e, ack, nil
	}
}

// Acked is the number of entries acknowledged successfully
func (m *MockConsumer) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// Close closes the entry channel; entries already queued can still be read.
func (m *MockConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.entries)
	}
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
