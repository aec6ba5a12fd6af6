package sink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"svckit/internal/models"
)

// extraPrefix is prepended to free-form field keys that collide with a core key
const extraPrefix = "extra."

var coreKeys = map[string]struct{}{
	KeyLevel:       {},
	KeyLogger:      {},
	KeyMessage:     {},
	KeyTraceID:     {},
	KeyServiceName: {},
	KeyTimestamp:   {},
	KeyException:   {},
}

// BuildEntry converts one record to wire form. It fails only when a field
// value cannot be rendered.
func BuildEntry(rec *models.LogRecord, serviceName string) (Entry, error) {
	if serviceName == "" {
		serviceName = "unknown"
	}
	contents := make(map[string]string, 6+rec.NumFields())

	for _, f := range rec.Fields() {
		v, err := renderValue(f.Value)
		if err != nil {
			return Entry{}, fmt.Errorf("field %q: %w", f.Key, err)
		}
		key := f.Key
		if _, reserved := coreKeys[key]; reserved {
			key = extraPrefix + key
		}
		contents[key] = v
	}

	contents[KeyLevel] = rec.Level().String()
	contents[KeyLogger] = rec.Logger()
	contents[KeyMessage] = rec.Message()
	contents[KeyTraceID] = rec.TraceID()
	contents[KeyServiceName] = serviceName
	contents[KeyTimestamp] = strconv.FormatInt(rec.Timestamp(), 10)
	if exc := rec.Exception(); exc != "" {
		contents[KeyException] = exc
	}

	return Entry{Time: rec.Timestamp(), Contents: contents}, nil
}

// BuildEntries converts a batch, skipping records that fail to serialize.
// The skipped count lets callers account for the loss.
func BuildEntries(batch []*models.LogRecord, serviceName string) (entries []Entry, skipped int, firstErr error) {
	entries = make([]Entry, 0, len(batch))
	for _, rec := range batch {
		if rec == nil {
			skipped++
			continue
		}
		e, err := BuildEntry(rec, serviceName)
		if err != nil {
			skipped++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, firstErr
}

// renderValue flattens a field value to the string form the backend stores.
// A panic from the value's own methods (a typed-nil error or Stringer, a
// broken MarshalJSON) is returned as an error so only this record is lost.
func renderValue(v any) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("rendering %T panicked: %v", v, r)
		}
	}()
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	case time.Duration:
		return val.String(), nil
	case error:
		return val.Error(), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
