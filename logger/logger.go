package logger

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"svckit/internal/models"
)

// Logger is a named call-site facade over a Manager. Every method takes the
// request context first so the trace id travels with the record.
type Logger struct {
	m      *Manager
	name   string
	fields []models.Field
}

// Name is the logger name stamped on every record
func (l *Logger) Name() string { return l.name }

// With returns a logger that adds fields to every record it emits
func (l *Logger) With(fields ...models.Field) *Logger {
	bound := make([]models.Field, 0, len(l.fields)+len(fields))
	bound = append(bound, l.fields...)
	bound = append(bound, fields...)
	return &Logger{m: l.m, name: l.name, fields: bound}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...models.Field) {
	l.log(ctx, models.LevelDebug, msg, "", fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...models.Field) {
	l.log(ctx, models.LevelInfo, msg, "", fields)
}

func (l *Logger) Warning(ctx context.Context, msg string, fields ...models.Field) {
	l.log(ctx, models.LevelWarning, msg, "", fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...models.Field) {
	l.log(ctx, models.LevelError, msg, "", fields)
}

func (l *Logger) Critical(ctx context.Context, msg string, fields ...models.Field) {
	l.log(ctx, models.LevelCritical, msg, "", fields)
}

// Exception logs at ERROR with err and the current goroutine's stack attached
// as the record's exception text.
func (l *Logger) Exception(ctx context.Context, msg string, err error, fields ...models.Field) {
	if !l.m.Enabled(models.LevelError) {
		return
	}
	var b strings.Builder
	if err != nil {
		fmt.Fprintf(&b, "%+v\n", err)
	}
	b.Write(debug.Stack())
	l.log(ctx, models.LevelError, msg, b.String(), fields)
}

func (l *Logger) log(ctx context.Context, level models.Level, msg, exception string, fields []models.Field) {
	if len(l.fields) > 0 {
		all := make([]models.Field, 0, len(l.fields)+len(fields))
		all = append(all, l.fields...)
		fields = append(all, fields...)
	}
	l.m.emit(ctx, level, l.name, msg, exception, fields)
}

// consoleTimeLayout matches the local handler's asctime style
const consoleTimeLayout = "2006-01-02 15:04:05,000"

// FormatLine renders rec for the console and file outputs:
//
//	2024-05-01 12:00:00,123 - orders - INFO - [trace] - message key=value
func FormatLine(rec *models.LogRecord) string {
	var b strings.Builder
	b.WriteString(rec.Time().Format(consoleTimeLayout))
	b.WriteString(" - ")
	b.WriteString(rec.Logger())
	b.WriteString(" - ")
	b.WriteString(rec.Level().String())
	b.WriteString(" - [")
	b.WriteString(rec.TraceID())
	b.WriteString("] - ")
	b.WriteString(rec.Message())
	for _, f := range rec.Fields() {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteByte('\n')
	if exc := rec.Exception(); exc != "" {
		b.WriteString(strings.TrimRight(exc, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}
