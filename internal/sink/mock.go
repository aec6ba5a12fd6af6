package sink

import (
	"context"
	"errors"
	"log"
	"sync"
)

// MockTransport keeps delivered batches in memory. It backs mock:// endpoints
// and lets tests inject failures.
type MockTransport struct {
	logger *log.Logger

	mu       sync.Mutex
	batches  [][]Entry
	topics   []string
	calls    int
	failNext int
	failErr  error
	closed   bool
}

// ErrMockFailure is returned by an injected failure without an explicit error
var ErrMockFailure = errors.New("mock transport: injected failure")

// NewMockTransport creates an empty mock. logger may be nil.
func NewMockTransport(logger *log.Logger) *MockTransport {
	return &MockTransport{logger: logger}
}

// FailNext makes the next n PutLogs calls return err (ErrMockFailure if nil)
func (m *MockTransport) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrMockFailure
	}
	m.failNext = n
	m.failErr = err
}

// PutLogs implements Transport
func (m *MockTransport) PutLogs(ctx context.Context, topic string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]Entry, len(entries))
	copy(batch, entries)
	m.batches = append(m.batches, batch)
	m.topics = append(m.topics, topic)
	if m.logger != nil {
		m.logger.Printf("[MockTransport] Received %d log entries for topic %s", len(entries), topic)
	}
	return nil
}

// Calls is the number of PutLogs invocations, failed ones included
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Batches returns the delivered batches in order
func (m *MockTransport) Batches() [][]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Entry, len(m.batches))
	copy(out, m.batches)
	return out
}

// Topics returns the topic of every delivered batch
func (m *MockTransport) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

// Entries flattens every delivered batch
func (m *MockTransport) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// Closed reports whether Close was called
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Transport = (*MockTransport)(nil)
