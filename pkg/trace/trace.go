// Package trace sets up OpenTelemetry tracing for the call bridge and
// carries the call-domain span helpers. Each bridged call gets one root
// span that stays open until termination; the customer lookup runs under
// its own child span.
package trace

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this module's tracer.
const TracerName = "github.com/IbrahimDoba/CallPlatter-sub000"

// Config selects the span exporter and the service identity stamped on
// every exported span.
type Config struct {
	// ServiceName appears as service.name on exported spans.
	ServiceName string

	// Exporter is "stdout", "otlp", or "none" (default: "stdout").
	Exporter string

	// OTLPEndpoint is the gRPC collector endpoint for the otlp exporter
	// (e.g., "localhost:4317").
	OTLPEndpoint string

	// SampleRatio is the parent-based sampling fraction (default: 1.0).
	SampleRatio float64
}

var (
	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
)

// Initialize installs the global tracer provider. Call once at startup.
func Initialize(ctx context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return fmt.Errorf("tracing already initialized")
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if cfg.SampleRatio == 0 {
		cfg.SampleRatio = 1.0
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return fmt.Errorf("trace resource: %w", err)
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = provider.Tracer(TracerName)

	log.Printf("[Trace] initialized: exporter=%s", cfg.Exporter)
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		return otlptrace.New(ctx, client)
	case "none":
		return noopExporter{}, nil
	}
	return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
}

// Shutdown flushes pending spans and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider = nil
	tracer = nil
	return err
}

// StartSpan opens a span on this module's tracer. Before Initialize it
// falls back to the global tracer, which is a no-op by default.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	tr := tracer
	mu.RUnlock()
	if tr == nil {
		tr = otel.Tracer(TracerName)
	}
	return tr.Start(ctx, name, opts...)
}

// noopExporter discards spans when the exporter is "none".
type noopExporter struct{}

func (noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (noopExporter) Shutdown(ctx context.Context) error {
	return nil
}
