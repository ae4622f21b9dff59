package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every komekshi span.
const tracerName = "github.com/MrWong99/komekshi"

// Tracer returns the komekshi tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

type sessionKey struct{}

// WithSession tags ctx with a capture session id. Spans started with
// [StartSpan] and loggers from [Logger] carry it.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the capture session id of ctx, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// StartSpan starts a span named name. When ctx belongs to a capture session
// the span gets a "session" attribute. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(Attr("session", id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "". HTTP
// responses echo it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with the trace, span and session ids of
// ctx attached, where present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	if id := SessionID(ctx); id != "" {
		l = l.With("session", id)
	}
	return l
}
