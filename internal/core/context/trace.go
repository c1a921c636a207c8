package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies one inbound request across logs, spans and audit
// entries.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace stores tc in ctx.
func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTrace returns the TraceContext stored in ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// DeriveTrace builds a TraceContext for a request. IDs of an active
// OpenTelemetry span win over the inbound traceHeader; missing IDs are
// generated.
func DeriveTrace(ctx context.Context, requestID, traceHeader string) *TraceContext {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	tc := &TraceContext{RequestID: requestID}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tc.TraceID = sc.TraceID().String()
		tc.SpanID = sc.SpanID().String()
		return tc
	}

	tc.TraceID = traceHeader
	if tc.TraceID == "" {
		tc.TraceID = uuid.New().String()
	}
	tc.SpanID = uuid.New().String()[:16]
	return tc
}

// RequestID returns the request ID carried by ctx, or "".
func RequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}
