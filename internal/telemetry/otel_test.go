package telemetry

import (
	"context"
	"testing"
)

func TestNewWithoutOTLPEndpointStillCreatesSpans(t *testing.T) {
	m, err := New(context.Background(), Config{ServiceName: "bbr-streamctl-test", ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx, span := m.StartControlCycleSpan(context.Background())
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context")
	}
	span.End()

	_, probeSpan := m.StartProbeRoundTripSpan(ctx)
	if !probeSpan.SpanContext().IsValid() {
		t.Fatal("expected a valid probe span context")
	}
	probeSpan.End()
}

func TestRatioOrDefaultClampsOutOfRange(t *testing.T) {
	cases := map[float64]float64{
		0:    1,
		-1:   1,
		1.5:  1,
		0.5:  0.5,
		1:    1,
	}
	for in, want := range cases {
		if got := ratioOrDefault(in); got != want {
			t.Fatalf("ratioOrDefault(%v) = %v, want %v", in, got, want)
		}
	}
}
