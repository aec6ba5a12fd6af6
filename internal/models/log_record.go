package models

import "time"

// UnknownTraceID is recorded when a call site has no trace context.
const UnknownTraceID = "unknown"

// Field is one free-form key/value pair attached to a record.
// Values should be scalars or JSON-serializable. Byte slices and the generic
// JSON containers ([]any, []string, map[string]any, map[string]string) are
// copied when the record is built; any other reference value (pointers,
// structs holding maps) stays shared and must not be mutated after logging.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field at a call site
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogRecord is a single observed event.
// It is immutable once built and may be handed between goroutines without copying.
type LogRecord struct {
	level     Level
	logger    string
	message   string
	traceID   string
	fields    []Field
	exception string
	created   time.Time
}

// RecordOption sets an optional attribute at construction time.
type RecordOption func(*LogRecord)

// WithException attaches rendered exception text to the record
func WithException(text string) RecordOption {
	return func(r *LogRecord) {
		r.exception = text
	}
}

// WithTime overrides the creation time (defaults to time.Now)
func WithTime(t time.Time) RecordOption {
	return func(r *LogRecord) {
		r.created = t
	}
}

// NewLogRecord builds a record. The fields slice and container values are
// copied so later mutation by the caller is not observed.
func NewLogRecord(level Level, logger, message, traceID string, fields []Field, opts ...RecordOption) *LogRecord {
	if traceID == "" {
		traceID = UnknownTraceID
	}
	r := &LogRecord{
		level:   level,
		logger:  logger,
		message: message,
		traceID: traceID,
		created: time.Now(),
	}
	if len(fields) > 0 {
		r.fields = make([]Field, len(fields))
		for i, f := range fields {
			r.fields[i] = Field{Key: f.Key, Value: snapshot(f.Value)}
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LogRecord) Level() Level      { return r.level }
func (r *LogRecord) Logger() string    { return r.logger }
func (r *LogRecord) Message() string   { return r.message }
func (r *LogRecord) TraceID() string   { return r.traceID }
func (r *LogRecord) Exception() string { return r.exception }
func (r *LogRecord) Time() time.Time   { return r.created }

// Timestamp returns the creation time in whole seconds since the epoch
func (r *LogRecord) Timestamp() int64 { return r.created.Unix() }

// Fields returns a copy of the record's fields in insertion order
func (r *LogRecord) Fields() []Field {
	if len(r.fields) == 0 {
		return nil
	}
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// NumFields reports how many free-form fields the record carries
func (r *LogRecord) NumFields() int { return len(r.fields) }

// snapshot copies the container types JSON-shaped call sites usually pass
func snapshot(v any) any {
	switch val := v.(type) {
	case []byte:
		if val == nil {
			return val
		}
		return append([]byte(nil), val...)
	case []string:
		if val == nil {
			return val
		}
		return append([]string(nil), val...)
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = snapshot(e)
		}
		return out
	case map[string]string:
		if val == nil {
			return val
		}
		out := make(map[string]string, len(val))
		for k, e := range val {
			out[k] = e
		}
		return out
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = snapshot(e)
		}
		return out
	}
	return v
}
