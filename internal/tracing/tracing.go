// Package tracing provides OpenTelemetry span helpers for the runtime's
// hot paths (an orchestrator turn, a tool dispatch), grounded on
// kadirpekel-hector's pkg/observability tracer. No SDK exporter is wired
// here — spans record against whatever global TracerProvider the
// embedding process configures via otel.SetTracerProvider, and otel's own
// default is a no-op provider, so turning on export is a deployment
// concern this module doesn't need an opinion on.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/agentrt/runtime"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Start begins a span named name under ctx, tagged with sessionID plus any
// additional attributes.
func Start(ctx context.Context, name, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String("session.id", sessionID)}, attrs...)
	return tracer().Start(ctx, name, trace.WithAttributes(all...))
}

// End records err (if non-nil) on span as its status, then ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// String is a convenience re-export so callers need only import this
// package, not attribute, for the common string-attribute case.
func String(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
