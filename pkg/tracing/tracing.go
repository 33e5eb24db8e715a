// Package tracing emits one OpenTelemetry span per build attempt, with a
// child span per pipeline component (configuration tree read, registry
// load, descriptor validation, wiring resolution, active-stream
// derivation, dependency ordering, routing) instead of a per-HTTP-request
// span tree.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config configures distributed tracing for build attempts.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	ServiceName    string        `yaml:"serviceName"`
	ServiceVersion string        `yaml:"serviceVersion"`
	Endpoint       string        `yaml:"endpoint"`
	SampleRate     float64       `yaml:"sampleRate"`
	BatchTimeout   time.Duration `yaml:"batchTimeout"`
}

// DefaultConfig returns tracing disabled by default.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "caer-mainloop",
		ServiceVersion: "v1.0.0",
		Endpoint:       "http://localhost:4318/v1/traces",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Manager owns the tracer provider for the process's lifetime.
type Manager struct {
	config   Config
	logger   *logrus.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewManager creates a tracing manager. When disabled it returns a no-op
// tracer so callers never need a nil check.
func NewManager(config Config, logger *logrus.Logger) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config, logger: logger, tracer: otel.Tracer("noop")}, nil
	}

	m := &Manager{config: config, logger: logger}
	if err := m.initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initialize() error {
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(m.config.Endpoint),
	))
	if err != nil {
		return fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(m.config.ServiceName),
			semconv.ServiceVersion(m.config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("tracing: create resource: %w", err)
	}

	m.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(m.config.BatchTimeout)),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.config.SampleRate)),
	)
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	m.tracer = otel.Tracer(m.config.ServiceName)

	m.logger.WithFields(logrus.Fields{
		"service": m.config.ServiceName, "endpoint": m.config.Endpoint,
	}).Info("tracing initialized")
	return nil
}

// Shutdown flushes and tears down the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// BuildSpan wraps one build attempt in a parent span named "build".
type BuildSpan struct {
	ctx  context.Context
	span oteltrace.Span
}

// StartBuild opens the parent span for a build attempt. A nil Manager (as
// used by package tests that exercise Build directly) yields a no-op span.
func (m *Manager) StartBuild(ctx context.Context) *BuildSpan {
	tracer := otel.Tracer("noop")
	if m != nil && m.tracer != nil {
		tracer = m.tracer
	}
	ctx, span := tracer.Start(ctx, "build")
	return &BuildSpan{ctx: ctx, span: span}
}

// Component runs fn inside a child span named name, recording fn's error
// (if any) as the span's status before returning it unchanged.
func (b *BuildSpan) Component(name string, fn func(ctx context.Context) error) error {
	tracer := oteltrace.SpanFromContext(b.ctx).TracerProvider().Tracer("")
	ctx, span := tracer.Start(b.ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// SetAttributes attaches build-level metadata (module count, stream count,
// slot count) to the parent span.
func (b *BuildSpan) SetAttributes(moduleCount, streamCount, slotCount int) {
	b.span.SetAttributes(
		attribute.Int("caer.modules", moduleCount),
		attribute.Int("caer.streams", streamCount),
		attribute.Int("caer.slots", slotCount),
	)
}

// End closes the parent span, recording err as its terminal status.
func (b *BuildSpan) End(err error) {
	if err != nil {
		b.span.RecordError(err)
		b.span.SetStatus(codes.Error, err.Error())
	} else {
		b.span.SetStatus(codes.Ok, "")
	}
	b.span.End()
}
