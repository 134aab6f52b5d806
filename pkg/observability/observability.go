// Package observability provides OpenTelemetry tracing and metrics for the
// lattice, plus per-adapter availability tracking.
//
// A disabled Provider is fully usable: it records into no-op providers.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// Config configures export to an OTLP collector.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batch flush interval
	Enabled        bool
	Insecure       bool // plaintext gRPC, dev only
}

const (
	instrumentationName = "mirrornode.lattice"
	exportInterval      = 15 * time.Second
)

// DefaultConfig returns the defaults. Telemetry is off until enabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "mirrornode",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider traces lattice operations and HTTP requests and counts adapter
// outcomes.
type Provider struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
	logger   *slog.Logger

	operations        metric.Int64Counter
	operationErrors   metric.Int64Counter
	operationDuration metric.Float64Histogram
	activeOperations  metric.Int64UpDownCounter
	adapterResponses  metric.Int64Counter
	adapterLatency    metric.Float64Histogram
	httpRequests      metric.Int64Counter
	httpDuration      metric.Float64Histogram
}

// New builds a provider. When enabled it installs OTLP exporters as the
// global trace and meter providers.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	logger := slog.Default().With("component", "observability")

	if !config.Enabled {
		logger.DebugContext(ctx, "telemetry disabled")
		return newProvider(config, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), nil)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(config.BatchTimeout)),
		sdktrace.WithSampler(sampler(config.SampleRate)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	p, err := newProvider(config, tp, mp, func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "telemetry exporting",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func newProvider(config *Config, tp trace.TracerProvider, mp metric.MeterProvider, shutdown func(context.Context) error) (*Provider, error) {
	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(config.ServiceVersion))
	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	histogram := func(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit),
			metric.WithExplicitBucketBoundaries(bounds...))
		errs = append(errs, err)
		return h
	}
	active, err := meter.Int64UpDownCounter("mirrornode.operations.active",
		metric.WithDescription("Lattice operations in progress"), metric.WithUnit("{operation}"))
	errs = append(errs, err)

	p := &Provider{
		tracer:           tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion)),
		shutdown:         shutdown,
		logger:           slog.Default().With("component", "observability"),
		activeOperations: active,

		operations:        counter("mirrornode.operations", "Lattice operations started", "{operation}"),
		operationErrors:   counter("mirrornode.operation.errors", "Lattice operations that failed", "{operation}"),
		operationDuration: histogram("mirrornode.operation.duration", "Lattice operation duration", "s", 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30),
		adapterResponses:  counter("mirrornode.adapter.responses", "Adapter envelopes by status", "{response}"),
		adapterLatency:    histogram("mirrornode.adapter.latency", "Adapter invocation latency", "ms", 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000),
		httpRequests:      counter("mirrornode.http.requests", "HTTP requests served", "{request}"),
		httpDuration:      histogram("mirrornode.http.duration", "HTTP request duration", "s", 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("telemetry instruments: %w", err)
	}
	return p, nil
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	if err := p.shutdown(ctx); err != nil {
		p.logger.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
		return err
	}
	return nil
}

// TrackOperation opens a span for one lattice operation. finish records the
// duration and, for a non-nil error, the failure. Metrics carry only the
// operation name; attrs go on the span.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	op := metric.WithAttributes(AttrOperation.String(name))
	p.activeOperations.Add(ctx, 1, op)
	p.operations.Add(ctx, 1, op)

	return ctx, func(err error) {
		p.activeOperations.Add(ctx, -1, op)
		p.operationDuration.Record(ctx, time.Since(start).Seconds(), op)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.operationErrors.Add(ctx, 1, op)
		}
		span.End()
	}
}

// TrackRequest opens a server span for one HTTP request. finish records the
// response status and duration; 5xx marks the span as failed.
func (p *Provider) TrackRequest(ctx context.Context, method, route string) (context.Context, func(status int)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrHTTPMethod.String(method), AttrHTTPRoute.String(route)),
	)
	return ctx, func(status int) {
		attrs := metric.WithAttributes(AttrHTTPMethod.String(method), AttrHTTPRoute.String(route), AttrHTTPStatus.Int(status))
		p.httpRequests.Add(ctx, 1, attrs)
		p.httpDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		span.SetAttributes(AttrHTTPStatus.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
		span.End()
	}
}

// RecordResponses counts each adapter envelope by status, records its latency
// and adds an event to the current span.
func (p *Provider) RecordResponses(ctx context.Context, responses map[string]*contracts.AdapterResponse) {
	for name, resp := range responses {
		outcome := AdapterOutcome(name, string(resp.Status()))
		p.adapterResponses.Add(ctx, 1, metric.WithAttributes(outcome...))
		if ms := resp.Metadata().LatencyMs; ms != nil {
			p.adapterLatency.Record(ctx, *ms, metric.WithAttributes(AttrAdapter.String(name)))
		}
		AddSpanEvent(ctx, "adapter.response", outcome...)
	}
}
