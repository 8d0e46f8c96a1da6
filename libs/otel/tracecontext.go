package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContextStrings serializes the current span context as W3C traceparent
// and tracestate values, suitable for storing alongside queued events.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	mc := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, mc)
	return mc["traceparent"], mc["tracestate"]
}

// ContextWithTraceContext restores a span context from stored traceparent and
// tracestate values. Empty values leave ctx unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" && tracestate == "" {
		return ctx
	}
	mc := propagation.MapCarrier{}
	if traceparent != "" {
		mc["traceparent"] = traceparent
	}
	if tracestate != "" {
		mc["tracestate"] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, mc)
}
