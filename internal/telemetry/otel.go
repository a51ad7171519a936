// Package telemetry sets up OpenTelemetry tracing and provides span
// helpers for a control cycle tick and an RTT probe round trip. The
// session does not call these helpers; only the tracer provider is
// installed. It is observability-only and has no bearing on the
// adaptation controller's decisions.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the exporter and sampling behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string  // empty disables export; spans are still created against a no-export provider
	SampleRatio    float64 // 0..1; ignored (always-on) when OTLPEndpoint is empty
}

// Manager owns the tracer provider and its shutdown hook.
type Manager struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// New builds a tracer provider, registering it globally so any package
// that calls otel.Tracer(...) picks it up.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	var tp *sdktrace.TracerProvider
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("build OTLP exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(ratioOrDefault(cfg.SampleRatio))),
		)
	} else {
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Manager{
		tracer:   tp.Tracer(cfg.ServiceName),
		shutdown: tp.Shutdown,
	}, nil
}

func ratioOrDefault(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

// StartControlCycleSpan wraps one adaptation controller tick.
func (m *Manager) StartControlCycleSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "bbr.control_cycle")
}

// StartProbeRoundTripSpan wraps one RTT probe send/echo round trip.
func (m *Manager) StartProbeRoundTripSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "bbr.probe_round_trip")
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}
