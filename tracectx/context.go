// Package tracectx carries a request's trace identifier through context.Context.
//
// An explicitly attached trace id wins; otherwise a valid OpenTelemetry span
// context supplies one; otherwise the id is "unknown".
package tracectx

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Unknown is reported when ctx carries no trace information
const Unknown = "unknown"

// HeaderName is the request/response header used by Middleware
const HeaderName = "X-Trace-Id"

type traceKey struct{}

// NewTraceID returns a random 32-character hex identifier
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a copy of ctx carrying id. An empty id generates a new one.
func WithTraceID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewTraceID()
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// New starts a fresh trace and returns the derived context and its id
func New(ctx context.Context) (context.Context, string) {
	id := NewTraceID()
	return WithTraceID(ctx, id), id
}

// TraceID extracts the trace id from ctx, falling back to the OpenTelemetry
// span context and finally to Unknown. A nil ctx is allowed.
func TraceID(ctx context.Context) string {
	if id, ok := Lookup(ctx); ok {
		return id
	}
	return Unknown
}

// Lookup reports the trace id carried by ctx, if any
func Lookup(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id, true
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String(), true
	}
	return "", false
}

// Middleware attaches a trace id to every request, reusing the X-Trace-Id
// header when the caller sent one, and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderName))
		if id == "" {
			if existing, ok := Lookup(r.Context()); ok {
				id = existing
			}
		}
		ctx := WithTraceID(r.Context(), id)
		w.Header().Set(HeaderName, TraceID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
