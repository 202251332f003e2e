// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/rtems-tracer/internal/config"
)

// TracerName is the instrumentation scope of exported thread spans.
const TracerName = "github.com/mrzor/rtems-tracer"

// logProxy reports the proxy settings the HTTP exporter will honor.
func logProxy(logger *zap.Logger) {
	httpProxy := os.Getenv("HTTP_PROXY")
	if httpProxy == "" {
		httpProxy = os.Getenv("http_proxy")
	}
	httpsProxy := os.Getenv("HTTPS_PROXY")
	if httpsProxy == "" {
		httpsProxy = os.Getenv("https_proxy")
	}

	if httpProxy != "" || httpsProxy != "" {
		logger.Info("proxy configuration",
			zap.String("http_proxy", httpProxy),
			zap.String("https_proxy", httpsProxy))
		return
	}
	logger.Debug("no proxy configured")
}

// NewResource builds the resource describing this tracer: service name,
// OTEL_RESOURCE_ATTRIBUTES and the traced target.
func NewResource(ctx context.Context, cfg *config.OTELConfig, extra ...attribute.KeyValue) (*resource.Resource, error) {
	opts := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if attrs := cfg.ParseResourceAttributes(); len(attrs) > 0 {
		opts = append(opts, resource.WithAttributes(attrs...))
	}
	if len(extra) > 0 {
		opts = append(opts, resource.WithAttributes(extra...))
	}

	res, err := resource.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// fixedTraceIDs places every root span in one trace.
type fixedTraceIDs struct {
	traceID trace.TraceID
}

// NewIDs implements sdktrace.IDGenerator.
func (g fixedTraceIDs) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	return g.traceID, g.NewSpanID(ctx, g.traceID)
}

// NewSpanID implements sdktrace.IDGenerator.
func (fixedTraceIDs) NewSpanID(context.Context, trace.TraceID) trace.SpanID {
	var id trace.SpanID
	for !id.IsValid() {
		_, _ = rand.Read(id[:]) //nolint:errcheck // crypto/rand.Read never fails
	}
	return id
}

// InitProvider creates a tracer provider exporting over OTLP/HTTP with a
// batch span processor. The exporter connects lazily on first export.
// A valid traceID pins every root span to that trace; otherwise the SDK
// picks random trace IDs.
//
// The HTTP client honors HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
func InitProvider(cfg *config.OTELConfig, logger *zap.Logger, traceID trace.TraceID, extra ...attribute.KeyValue) (*sdktrace.TracerProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint, insecure := cfg.Endpoint()
	logger.Info("OTEL configuration",
		zap.String("service_name", cfg.ServiceName),
		zap.String("endpoint", endpoint),
		zap.Bool("insecure", insecure),
		zap.Int("headers", len(cfg.Headers)),
		zap.String("resource_attributes", cfg.ResourceAttributes))
	logProxy(logger)

	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := NewResource(ctx, cfg, extra...)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	}
	if traceID.IsValid() {
		logger.Info("using fixed trace ID", zap.Stringer("trace_id", traceID))
		opts = append(opts, sdktrace.WithIDGenerator(fixedTraceIDs{traceID: traceID}))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// ShutdownProvider gracefully shuts down the tracer provider, flushing any remaining spans.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}
