package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentCallStarted creates the root span for one bridged call. The
// span stays open for the life of the call and is ended at termination.
func InstrumentCallStarted(ctx context.Context, callID, businessID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call.bridge",
		trace.WithAttributes(
			CallAttrs(callID, businessID)...,
		),
	)
}

// InstrumentLookup creates a span for the customer-context lookup
func InstrumentLookup(ctx context.Context, businessID, callerNumber string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call.customer_lookup",
		trace.WithAttributes(
			attribute.String(AttrBusinessID, businessID),
			attribute.String(AttrCallerNumber, callerNumber),
		),
	)
}

// RecordSessionConfigured adds a session-configuration event to the call span
func RecordSessionConfigured(span trace.Span, kind, voice string, serverVAD bool) {
	AddEvent(span, "session.configured", SessionConfigAttrs(kind, voice, serverVAD)...)
}

// RecordInterruption adds an interruption event to the call span
func RecordInterruption(span trace.Span, elapsedMs int64, truncated bool) {
	AddEvent(span, "call.interrupted", InterruptionAttrs(elapsedMs, truncated)...)
}

// RecordTermination adds the termination reason and ends the call span
func RecordTermination(span trace.Span, reason string) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrCallReason, reason))
	span.End()
}

// RecordError marks the span failed. A nil err is a no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent attaches a point-in-time event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
