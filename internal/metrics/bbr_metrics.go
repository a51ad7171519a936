package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/twogc/bbr-streamctl/internal/throughput"
)

// BBRMetrics is the Prometheus surface for the adaptation controller. It
// has no bearing on the controller's own decisions (§9 Non-goals exclude
// telemetry from the control loop's correctness).
type BBRMetrics struct {
	BitrateKbps        prometheus.Gauge
	Gain               prometheus.Gauge
	ThroughputBytes    prometheus.Gauge
	RTPropUs           prometheus.Gauge
	RTTUs              prometheus.Gauge
	CyclesElapsed      prometheus.Gauge
	Stage              prometheus.Gauge
	ReconfigureTotal   prometheus.Counter
	// ProbeLossTotal is registered but nothing in this module increments
	// it, so it stays at zero.
	ProbeLossTotal prometheus.Counter
}

// NewBBRMetrics registers the BBR gauges/counters against reg. Pass
// prometheus.DefaultRegisterer to export on the default /metrics handler.
func NewBBRMetrics(reg prometheus.Registerer) *BBRMetrics {
	factory := promauto.With(reg)
	return &BBRMetrics{
		BitrateKbps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_bitrate_kbps",
			Help: "Current clamped bitrate emitted by the adaptation controller, in kbps.",
		}),
		Gain: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_gain",
			Help: "Gain factor computed on the most recent control cycle.",
		}),
		ThroughputBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_throughput_bytes_per_window",
			Help: "Delivery-rate estimator's most recently published throughput, in bytes per cycle window.",
		}),
		RTPropUs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_rtprop_us",
			Help: "Minimum round-trip propagation time observed over the RTPROP_WINDOW, in microseconds.",
		}),
		RTTUs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_rtt_us",
			Help: "Maximum recent round-trip time, in microseconds.",
		}),
		CyclesElapsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_cycles_elapsed",
			Help: "Number of control cycles run since boot, including the suppressed warm-up cycles.",
		}),
		Stage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbr_state",
			Help: "Current adaptation stage: 0=WAITING, 1=STARTUP, 2=STANDBY.",
		}),
		ReconfigureTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bbr_reconfigure_total",
			Help: "Total number of RECONFIGURE messages emitted.",
		}),
		ProbeLossTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bbr_probe_loss_total",
			Help: "Total number of RTT probe slots zeroed due to a missing echo.",
		}),
	}
}

// ObserveTick updates the per-cycle gauges from one controller tick.
func (m *BBRMetrics) ObserveTick(stage int, gain float64, bitrateKbps int32, cyclesElapsed uint32, snap throughput.ReportSnapshot) {
	m.Stage.Set(float64(stage))
	m.Gain.Set(gain)
	m.BitrateKbps.Set(float64(bitrateKbps))
	m.CyclesElapsed.Set(float64(cyclesElapsed))
	m.ThroughputBytes.Set(float64(snap.ThroughputBytesPerWindow))
	m.RTPropUs.Set(float64(snap.RTPropUs))
	m.RTTUs.Set(float64(snap.RTTUs))
}
