// Package telemetry wires OpenTelemetry tracing for the daemon. Spans are
// exported over OTLP/HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set; without
// it every tracer returned by Tracer produces no-op spans.
package telemetry

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
)

var sdkProvider *sdktrace.TracerProvider

// Init installs the global tracer provider for the daemon process. Without
// an OTLP endpoint in the environment it leaves the no-op default in place,
// so the CLI and tests never pay for tracing.
func Init(version string, log *logger.Logger) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return
	}

	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(stripScheme(endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.WithError(err).Warn("Tracing disabled: OTLP exporter setup failed")
		return
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("sparkq"),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		res = resource.Default()
	}

	sdkProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdkProvider)
	log.Info("Tracing enabled", zap.String("otlp_endpoint", endpoint))
}

// stripScheme reduces the endpoint to host:port, which is the form
// otlptracehttp.WithEndpoint expects.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

// Tracer returns a named tracer from the global provider. Tracers obtained
// before Init runs are delegated to the real provider once it is installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Shutdown flushes pending spans. Safe to call when tracing never started.
func Shutdown(ctx context.Context) error {
	if sdkProvider != nil {
		return sdkProvider.Shutdown(ctx)
	}
	return nil
}
