package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// ServiceName tags every span and the HTTP middleware.
const ServiceName = "studymill-backend"

// Init installs the global tracer provider and propagators. The exporter is
// env-selected: "stdout" (default) writes spans to stdout, "none" keeps the
// provider without an exporter. The returned func flushes and shuts the
// provider down.
func Init(ctx context.Context, log *logger.Logger) (func(context.Context) error, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	exporter := strings.ToLower(strings.TrimSpace(envutil.Str("OTEL_TRACES_EXPORTER", "stdout")))
	switch exporter {
	case "stdout":
		exp, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "none":
		// Provider without an exporter: spans propagate but are not recorded.
	default:
		return nil, fmt.Errorf("unknown OTEL_TRACES_EXPORTER %q", exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing initialized", "exporter", exporter)
	return tp.Shutdown, nil
}

// Tracer is the shared tracer for pipeline and client spans.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}
