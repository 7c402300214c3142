package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Field keys used by the *Ctx logging variants.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"
	KeyObject  = "object"
	KeyHandle  = "handle"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var objectKey = contextKey{}

// WithObject tags the context with the object key being served so every
// log line emitted on this request's path carries it.
func WithObject(ctx context.Context, object string) context.Context {
	return context.WithValue(ctx, objectKey, object)
}

// appendContextFields prepends trace correlation fields and the tagged
// object key, if any, to args.
func appendContextFields(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}

	ctxArgs := make([]any, 0, 6+len(args))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ctxArgs = append(ctxArgs,
			KeyTraceID, sc.TraceID().String(),
			KeySpanID, sc.SpanID().String())
	}
	if object, ok := ctx.Value(objectKey).(string); ok && object != "" {
		ctxArgs = append(ctxArgs, KeyObject, object)
	}

	if len(ctxArgs) == 0 {
		return args
	}
	return append(ctxArgs, args...)
}
