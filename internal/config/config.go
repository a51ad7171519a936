// Package config defines the process-wide Config struct and its flag
// binding, mirroring the flat struct-plus-flag.Parse pattern the rest of
// this codebase uses for its test harnesses.
package config

import (
	"flag"
	"time"
)

// Config holds every knob the bbr-streamctl CLI exposes.
type Config struct {
	Role string // Role: sender | peer

	ProbeChannelAddr string // local bind address for the RTT probe UDP socket
	PeerProbeAddr    string // peer's probe UDP address

	ControlAddr     string // local bind address for the QUIC control transport
	PeerControlAddr string // peer's control transport address

	BitrateInitial int // initial bitrate in kbps, clamped to [BITRATE_MIN, BITRATE_MAX]

	CertPath string // TLS certificate path (optional; self-signed if empty)
	KeyPath  string // TLS key path (optional)

	ReportPath   string // path to write the end-of-run report
	ReportFormat string // csv | md | json; not read by bbr-streamctl, which always writes the PrintReport text report
	GraphPath    string // path to write the per-frame CSV trace (bbr_graph.csv)

	Prometheus     bool   // expose Prometheus metrics
	PrometheusAddr string // address for the /metrics endpoint

	OTLPEndpoint string // OTLP collector endpoint; empty disables span export
	PprofAddr    string // address for pprof; not read by bbr-streamctl, which starts no pprof server

	LogLevel string // debug | info | warn | error
	LogJSON  bool   // structured JSON logs instead of console encoding

	Duration time.Duration // 0 means run until interrupted
}

// Bind registers every Config field as a flag on fs and returns a Config
// whose fields are populated once fs.Parse runs.
func Bind(fs *flag.FlagSet) *Config {
	cfg := &Config{}

	fs.StringVar(&cfg.Role, "role", "sender", "Role: sender | peer")

	fs.StringVar(&cfg.ProbeChannelAddr, "probe-channel-addr", ":9100", "Local bind address for the RTT probe UDP socket")
	fs.StringVar(&cfg.PeerProbeAddr, "peer-probe-addr", "", "Peer's probe UDP address")

	fs.StringVar(&cfg.ControlAddr, "control-addr", ":9101", "Local bind address for the QUIC control transport")
	fs.StringVar(&cfg.PeerControlAddr, "peer-control-addr", "", "Peer's control transport address")

	fs.IntVar(&cfg.BitrateInitial, "bitrate-initial", 1000, "Initial bitrate in kbps")

	fs.StringVar(&cfg.CertPath, "cert", "", "TLS certificate path (self-signed if empty)")
	fs.StringVar(&cfg.KeyPath, "key", "", "TLS key path")

	fs.StringVar(&cfg.ReportPath, "report", "", "Path to write the end-of-run report")
	fs.StringVar(&cfg.ReportFormat, "report-format", "md", "Report format: csv | md | json (ignored; the report is always the PrintReport text report)")
	fs.StringVar(&cfg.GraphPath, "graph", "", "Path to write the per-frame CSV trace (bbr_graph.csv)")

	fs.BoolVar(&cfg.Prometheus, "prometheus", false, "Expose Prometheus metrics")
	fs.StringVar(&cfg.PrometheusAddr, "prometheus-addr", ":9464", "Address for the /metrics endpoint")

	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", "", "OTLP collector endpoint (empty disables span export)")
	fs.StringVar(&cfg.PprofAddr, "pprof-addr", "", "Address for pprof (ignored; no pprof server is started)")

	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug | info | warn | error")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "Structured JSON logs instead of console encoding")

	fs.DurationVar(&cfg.Duration, "duration", 0, "Run duration (0 runs until interrupted)")

	return cfg
}
