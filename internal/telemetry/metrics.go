package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterProvider mirrors a handful of counters through OTel's metric API,
// exported on the same Prometheus registry BBRMetrics already publishes
// to — one /metrics endpoint serves both the direct client_golang gauges
// and these OTel-instrumented counters side by side.
type MeterProvider struct {
	provider         *sdkmetric.MeterProvider
	cycleCount       metric.Int64Counter
	reconfigureCount metric.Int64Counter
}

// NewMeterProvider builds an OTel meter provider backed by reg.
func NewMeterProvider(reg *prometheus.Registry, serviceName string) (*MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("build otel prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	cycleCount, err := meter.Int64Counter("bbr_otel_cycle_total",
		metric.WithDescription("Adaptation control cycles ticked."))
	if err != nil {
		return nil, fmt.Errorf("build cycle counter: %w", err)
	}
	reconfigureCount, err := meter.Int64Counter("bbr_otel_reconfigure_total",
		metric.WithDescription("RECONFIGURE messages emitted."))
	if err != nil {
		return nil, fmt.Errorf("build reconfigure counter: %w", err)
	}

	return &MeterProvider{
		provider:         provider,
		cycleCount:       cycleCount,
		reconfigureCount: reconfigureCount,
	}, nil
}

// RecordCycle increments the control-cycle counter.
func (m *MeterProvider) RecordCycle(ctx context.Context) {
	m.cycleCount.Add(ctx, 1)
}

// RecordReconfigure increments the RECONFIGURE-emitted counter.
func (m *MeterProvider) RecordReconfigure(ctx context.Context) {
	m.reconfigureCount.Add(ctx, 1)
}

// Shutdown flushes and stops the meter provider.
func (m *MeterProvider) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
