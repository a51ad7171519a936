package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/twogc/bbr-streamctl/internal/collab"
	"github.com/twogc/bbr-streamctl/internal/config"
	"github.com/twogc/bbr-streamctl/internal/metrics"
	"github.com/twogc/bbr-streamctl/internal/session"
	"github.com/twogc/bbr-streamctl/internal/telemetry"
)

const version = "0.1.0"

func main() {
	// graph/report are standalone utility subcommands that read a
	// previously recorded bbr_graph.csv trace; they never build a session.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "graph":
			runGraphCommand(os.Args[2:])
			return
		case "report":
			runReportCommand(os.Args[2:])
			return
		}
	}

	fs := flag.NewFlagSet("bbr-streamctl", flag.ExitOnError)
	cfg := config.Bind(fs)
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("bbr-streamctl", version)
		os.Exit(0)
	}

	fmt.Println("\033[1;36m==========================================\033[0m")
	fmt.Println("\033[1;36m    bbr-streamctl: adaptive bitrate control\033[0m")
	fmt.Println("\033[1;36m==========================================\033[0m")

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.Duration > 0 {
		var durationCancel context.CancelFunc
		ctx, durationCancel = context.WithTimeout(ctx, cfg.Duration)
		defer durationCancel()
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bbr-streamctl exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var reg *prometheus.Registry
	var promMetrics *metrics.BBRMetrics
	if cfg.Prometheus {
		reg = prometheus.NewRegistry()
		promMetrics = metrics.NewBBRMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.PrometheusAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("prometheus http server exited", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("prometheus metrics exposed", zap.String("addr", cfg.PrometheusAddr))
	}

	// A Manager is always created: with no OTLP endpoint it still installs
	// an always-sampling tracer provider whose spans are not exported
	// anywhere. The session does not start control-cycle or
	// probe-round-trip spans itself.
	telemetryMgr, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "bbr-streamctl",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRatio:    1.0,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer telemetryMgr.Shutdown(context.Background())

	histograms := metrics.NewBBRHistograms()

	// The OTel meter provider piggybacks on the same registry as the plain
	// Prometheus gauges above, so it only exists when -prometheus is set.
	var otelMeter *telemetry.MeterProvider
	if reg != nil {
		otelMeter, err = telemetry.NewMeterProvider(reg, "bbr-streamctl")
		if err != nil {
			return fmt.Errorf("init otel meter provider: %w", err)
		}
		defer otelMeter.Shutdown(context.Background())
	}

	encoder := collab.NewLoggingEncoder(logger)
	sess, err := session.New(session.Config{
		ProbeChannelAddr:   cfg.ProbeChannelAddr,
		PeerProbeAddr:      cfg.PeerProbeAddr,
		ControlAddr:        cfg.ControlAddr,
		PeerControlAddr:    cfg.PeerControlAddr,
		CertPath:           cfg.CertPath,
		KeyPath:            cfg.KeyPath,
		BitrateInitialKbps: int32(cfg.BitrateInitial),
		GraphPath:          cfg.GraphPath,
		PromMetrics:        promMetrics,
		Histograms:         histograms,
		OtelMeter:          otelMeter,
	}, encoder, logger)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	defer sess.Close()

	switch cfg.Role {
	case "sender":
		if cfg.PeerControlAddr == "" {
			return fmt.Errorf("-peer-control-addr is required in sender role")
		}
		if err := sess.ConnectControlChannel(ctx); err != nil {
			return fmt.Errorf("connect control channel: %w", err)
		}
		// Demo traffic: a real integration feeds sess.Estimator() from the
		// media receive path instead (collab.PacketArrivalSink).
		source := collab.NewPacketSource(sess.Estimator(), 1, 60, 1200, 1)
		go source.Run(ctx)
	case "peer":
		if err := sess.AcceptControlChannel(ctx); err != nil {
			return fmt.Errorf("accept control channel: %w", err)
		}
	default:
		return fmt.Errorf("unknown role %q: want sender | peer", cfg.Role)
	}

	logger.Info("session starting",
		zap.String("role", cfg.Role),
		zap.Int32("bitrate_initial_kbps", int32(cfg.BitrateInitial)))

	if err := sess.Run(ctx); err != nil {
		return fmt.Errorf("session run: %w", err)
	}

	summary := sess.Summary(cfg.Role)
	metrics.PrintReportStdout(summary)
	if cfg.ReportPath != "" {
		if err := writeReportFile(cfg.ReportPath, summary); err != nil {
			logger.Warn("failed to write report file", zap.Error(err))
		}
	}
	return nil
}

func writeReportFile(path string, summary metrics.RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file %s: %w", path, err)
	}
	defer f.Close()
	metrics.PrintReport(f, summary)
	return nil
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 70
	}
	return w
}

// runGraphCommand renders bitrate/RTT/RTProp trend graphs from a recorded
// trace: `bbr-streamctl graph <bbr_graph.csv>`.
func runGraphCommand(args []string) {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bbr-streamctl graph <bbr_graph.csv>")
		os.Exit(2)
	}
	rows, err := metrics.ReadTrace(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read trace:", err)
		os.Exit(1)
	}
	fmt.Println(metrics.PlotTrace(rows, terminalWidth()))
}

// runReportCommand re-renders the colored end-of-run console report from a
// recorded trace: `bbr-streamctl report <bbr_graph.csv>`.
func runReportCommand(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	role := fs.String("role", "sender", "Role label for the report header")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bbr-streamctl report [-role=sender] <bbr_graph.csv>")
		os.Exit(2)
	}
	rows, err := metrics.ReadTrace(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read trace:", err)
		os.Exit(1)
	}
	metrics.PrintReportStdout(summaryFromTrace(*role, rows))
}

// summaryFromTrace rebuilds a RunSummary from a recorded trace for offline
// reporting, recomputing percentiles with a fresh BBRHistograms instance
// rather than trusting any single row.
func summaryFromTrace(role string, rows []metrics.TraceRow) metrics.RunSummary {
	hist := metrics.NewBBRHistograms()
	bitrateHistory := make([]float64, 0, len(rows))
	var final metrics.TraceRow
	for _, r := range rows {
		hist.RecordBitrate(int32(r.BitrateKbps))
		hist.RecordSnapshot(uint32(r.SizeBytes), uint32(r.RTPropUs), uint32(r.RTTUs))
		bitrateHistory = append(bitrateHistory, float64(r.BitrateKbps))
		final = r
	}
	return metrics.RunSummary{
		Role:           role,
		FinalStage:     "UNKNOWN", // not recorded in the CSV trace, only in live sessions
		FinalBitrate:   int32(final.BitrateKbps),
		RTT:            hist.RTTStats(),
		RTProp:         hist.RTPropStats(),
		Throughput:     hist.ThroughputStats(),
		Bitrate:        hist.BitrateStats(),
		BitrateHistory: bitrateHistory,
	}
}
