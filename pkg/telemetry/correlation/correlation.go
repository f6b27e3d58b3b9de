package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// HeaderName is the inbound/outbound header carrying the correlation ID.
const HeaderName = "X-Correlation-ID"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Carrier is the metadata copied onto background tasks so that work done
// after the originating request still logs under the same identifiers.
type Carrier struct {
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Capture snapshots correlation and span identifiers from ctx.
func Capture(ctx context.Context) Carrier {
	c := Carrier{CorrelationID: ExtractCorrelationID(ctx)}
	if c.CorrelationID == "" {
		c.CorrelationID = ulid.Make().String()
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		c.TraceID = sc.TraceID().String()
		c.SpanID = sc.SpanID().String()
	}
	return c
}

// Restore seeds a fresh context with the identifiers held by c.
func (c Carrier) Restore(ctx context.Context) context.Context {
	ctx = ContextWithCorrelationID(ctx, c.CorrelationID)
	return ContextWithRemoteSpan(ctx, c.TraceID, c.SpanID)
}

// ContextWithRemoteSpan seeds the context with a remote span if valid identifiers are provided.
func ContextWithRemoteSpan(ctx context.Context, traceIDHex, spanIDHex string) context.Context {
	if traceIDHex == "" || spanIDHex == "" {
		return ctx
	}

	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithSpanContext(ctx, parent)
}
