package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCallSpanEventsAndTermination(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "call.bridge")

	RecordSessionConfigured(span, "minimal", "alloy", true)
	RecordInterruption(span, 1200, true)
	RecordTermination(span, "telephony_stop")

	spans := exp.GetSpans()
	require.Len(t, spans, 1)

	var eventNames []string
	for _, ev := range spans[0].Events {
		eventNames = append(eventNames, ev.Name)
	}
	assert.Equal(t, []string{"session.configured", "call.interrupted"}, eventNames)
	assert.Contains(t, spans[0].Attributes,
		attribute.String(AttrCallReason, "telephony_stop"))
}

func TestRecordTerminationNilSpan(t *testing.T) {
	assert.NotPanics(t, func() { RecordTermination(nil, "ai_close") })
}

func TestRecordErrorMarksSpanFailed(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "call.customer_lookup")

	RecordError(span, nil)
	RecordError(span, errors.New("vector search down"))
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Len(t, spans[0].Events, 1)
	assert.Equal(t, "vector search down", spans[0].Status.Description)
}
