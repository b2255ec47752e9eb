package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectTraceHeaders returns the current trace context as string headers
// suitable for bus message properties.
func InjectTraceHeaders(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return headers
	}
	propagator.Inject(ctx, propagation.MapCarrier(headers))
	return headers
}

// ExtractTraceHeaders restores trace context from bus message headers.
func ExtractTraceHeaders(ctx context.Context, headers map[string]string) context.Context {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return ctx
	}
	return propagator.Extract(ctx, propagation.MapCarrier(headers))
}
