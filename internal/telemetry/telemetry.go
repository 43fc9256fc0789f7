// Package telemetry wires up OpenTelemetry tracing for toolsentry. Spans are
// emitted around the Policy Engine's evaluation path and the Inference
// Manager's provider dispatch, the two stages worth tracing in a request's
// lifecycle. Exporting goes to stderr only — stdout is reserved for the
// MCP stdio transport's JSON-RPC stream, and writing trace output there
// would corrupt it.
package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/toolsentry/toolsentry"

// Shutdown flushes and stops the tracer provider started by Setup.
type Shutdown func(ctx context.Context) error

// Setup installs a global TracerProvider. When enabled is false it installs
// a no-op provider, so callers can unconditionally call Tracer() without a
// nil check. Spans are written to stderr as human-readable text, matching
// the rest of this service's stderr-only logging convention; this is a
// development aid, not a production exporter, since no OTLP collector
// endpoint is configured.
func Setup(ctx context.Context, enabled bool, version string, logger *slog.Logger) (Shutdown, error) {
	if !enabled {
		// otel's default global TracerProvider (no SetTracerProvider call) is
		// already a no-op, so Tracer() is safe to call either way.
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "toolsentry"),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled", "exporter", "stdouttrace", "target", "stderr")
	return tp.Shutdown, nil
}

// Tracer returns the package-wide tracer, bound to whatever provider Setup
// installed (real or no-op).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
