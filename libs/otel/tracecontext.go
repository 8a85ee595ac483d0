package otelx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// w3c is used directly so stored trace context keeps its format even if the
// process swaps the global propagator.
var w3c = propagation.TraceContext{}

// TraceContext is the W3C trace context persisted on outbox rows so the
// publisher can continue the trace of the request that wrote the row.
type TraceContext struct {
	Parent string
	State  string
}

func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	w3c.Inject(ctx, carrier)
	return TraceContext{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Restore returns ctx carrying tc as its remote parent span context.
func (tc TraceContext) Restore(ctx context.Context) context.Context {
	if tc.Parent == "" {
		return ctx
	}
	return w3c.Extract(ctx, propagation.MapCarrier{"traceparent": tc.Parent, "tracestate": tc.State})
}
