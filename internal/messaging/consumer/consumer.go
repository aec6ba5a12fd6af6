package consumer

import (
	"context"

	"svckit/internal/sink"
)

// Consumer defines the interface for reading shipped log entries back off a
// message queue.
type Consumer interface {
	// Consume blocks until an entry is received or the context is cancelled.
	// It returns the entry, an acknowledgement callback, and any error that occurred.
	// The ack callback: ack(true) commits the entry; ack(false) leaves it for
	// redelivery.
	Consume(ctx context.Context) (entry *sink.Entry, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
