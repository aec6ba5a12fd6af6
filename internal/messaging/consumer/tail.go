package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"svckit/internal/models"
	"svckit/internal/sink"
)

const (
	pollTimeout = time.Second
	// DefaultRetryDelay is the pause after a consumer error before reading again
	DefaultRetryDelay = 5 * time.Second
)

// Tailer prints consumed entries at or above a minimum level
type Tailer struct {
	consumer   Consumer
	out        io.Writer
	minLevel   models.Level
	retryDelay time.Duration
	logger     *log.Logger
}

// NewTailer creates a Tailer writing one line per entry to out
func NewTailer(c Consumer, out io.Writer, minLevel models.Level, logger *log.Logger) *Tailer {
	return &Tailer{consumer: c, out: out, minLevel: minLevel, retryDelay: DefaultRetryDelay, logger: logger}
}

// Run consumes until ctx is cancelled or the consumer is closed. Entries
// below the minimum level are acknowledged without being printed.
func (t *Tailer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		consumeCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		entry, ack, err := t.consumer.Consume(consumeCtx)
		cancel()

		if err != nil {
			switch {
			case errors.Is(err, ErrClosed):
				return nil
			case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
				continue
			}
			t.logger.Printf("Tailer: Consumer error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.retryDelay):
			}
			continue
		}
		if entry == nil {
			continue
		}

		if level, err := models.ParseLevel(entry.Contents[sink.KeyLevel]); err != nil || level.Enabled(t.minLevel) {
			if _, werr := io.WriteString(t.out, FormatEntry(entry)); werr != nil {
				ack(false)
				return fmt.Errorf("failed to write entry: %w", werr)
			}
		}
		ack(true)
	}
}

// FormatEntry renders a shipped entry in the local console layout, with
// service name and sorted extra keys after the message.
func FormatEntry(e *sink.Entry) string {
	c := e.Contents
	ts := time.Unix(e.Time, 0)
	if v, err := strconv.ParseInt(c[sink.KeyTimestamp], 10, 64); err == nil {
		ts = time.Unix(v, 0)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s - %s - %s - [%s] - %s",
		ts.Format("2006-01-02 15:04:05"), c[sink.KeyServiceName], c[sink.KeyLogger], c[sink.KeyLevel], c[sink.KeyTraceID], c[sink.KeyMessage])

	keys := make([]string, 0, len(c))
	for k := range c {
		switch k {
		case sink.KeyLevel, sink.KeyLogger, sink.KeyMessage, sink.KeyTraceID,
			sink.KeyServiceName, sink.KeyTimestamp, sink.KeyException:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, c[k])
	}
	b.WriteByte('\n')
	if exc := c[sink.KeyException]; exc != "" {
		b.WriteString(strings.TrimRight(exc, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}
