package logger

import (
	"context"
	"log/slog"

	"svckit/internal/models"
	"svckit/tracectx"
)

// SlogHandler adapts the pipeline to log/slog. Attribute groups are
// flattened into dotted keys.
type SlogHandler struct {
	m      *Manager
	name   string
	prefix string
	attrs  []models.Field
}

// SlogHandler returns a slog.Handler whose records carry loggerName
func (m *Manager) SlogHandler(loggerName string) *SlogHandler {
	if loggerName == "" {
		loggerName = "slog"
	}
	return &SlogHandler{m: m, name: loggerName}
}

// LevelFromSlog maps slog levels onto the five pipeline levels
func LevelFromSlog(l slog.Level) models.Level {
	switch {
	case l < slog.LevelInfo:
		return models.LevelDebug
	case l < slog.LevelWarn:
		return models.LevelInfo
	case l < slog.LevelError:
		return models.LevelWarning
	case l < slog.LevelError+4:
		return models.LevelError
	default:
		return models.LevelCritical
	}
}

func (h *SlogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.m.Enabled(LevelFromSlog(l))
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make([]models.Field, 0, len(h.attrs)+r.NumAttrs())
	fields = append(fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, a)
		return true
	})

	opts := []models.RecordOption{}
	if !r.Time.IsZero() {
		opts = append(opts, models.WithTime(r.Time))
	}
	rec := models.NewLogRecord(LevelFromSlog(r.Level), h.name, r.Message, tracectx.TraceID(ctx), fields, opts...)
	h.m.Submit(rec)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = make([]models.Field, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = appendAttr(next.attrs, h.prefix, a)
	}
	return &next
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func appendAttr(fields []models.Field, prefix string, a slog.Attr) []models.Field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			fields = appendAttr(fields, p, ga)
		}
		return fields
	}
	return append(fields, models.F(prefix+a.Key, a.Value.Any()))
}

var _ slog.Handler = (*SlogHandler)(nil)
