package sink

import (
	"context"
)

// Core content keys present on every shipped entry
const (
	KeyLevel       = "level"
	KeyLogger      = "logger"
	KeyMessage     = "message"
	KeyTraceID     = "trace_id"
	KeyServiceName = "service_name"
	KeyTimestamp   = "timestamp"
	KeyException   = "exception"
)

// Entry is one record in wire form: a flat string map plus its event time
type Entry struct {
	Time     int64             `json:"time"` // Seconds since epoch
	Contents map[string]string `json:"contents"`
}

// TraceID returns the entry's trace id content, used as a partition key
func (e Entry) TraceID() string {
	return e.Contents[KeyTraceID]
}

// Transport delivers a batch of entries to a remote log backend in one call.
// Implementations must be safe for concurrent use by several workers.
type Transport interface {
	// PutLogs sends entries to the destination topic. A returned error makes the
	// shipper retry the whole batch.
	PutLogs(ctx context.Context, topic string, entries []Entry) error

	// Close releases connections held by the transport
	Close() error
}
