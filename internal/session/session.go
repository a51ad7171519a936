// Package session wires components A-D together into the running
// adaptive bitrate controller described by the spec: the probe channel,
// the delivery-rate estimator, the adaptation state machine, and the
// control message transport, plus the goroutines that drive them (§5).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/twogc/bbr-streamctl/internal/bbr"
	"github.com/twogc/bbr-streamctl/internal/collab"
	"github.com/twogc/bbr-streamctl/internal/metrics"
	"github.com/twogc/bbr-streamctl/internal/rttprobe"
	"github.com/twogc/bbr-streamctl/internal/telemetry"
	"github.com/twogc/bbr-streamctl/internal/throughput"
	"github.com/twogc/bbr-streamctl/internal/transport"
	"github.com/twogc/bbr-streamctl/internal/wire"
)

// Config configures one Session.
type Config struct {
	ProbeChannelAddr string
	PeerProbeAddr    string

	ControlAddr     string
	PeerControlAddr string
	CertPath        string
	KeyPath         string

	BitrateInitialKbps int32

	GraphPath string // empty disables the per-frame CSV trace

	PromMetrics *metrics.BBRMetrics // nil disables Prometheus observation
	Histograms  *metrics.BBRHistograms
	OtelMeter   *telemetry.MeterProvider // nil disables OTel metric counters
}

// Session owns every moving part of one controller instance: one probe
// channel, one estimator, one BBR controller, and one control transport
// connection.
type Session struct {
	logger *zap.Logger
	cfg    Config

	probe      *rttprobe.Channel
	estimator  *throughput.Estimator
	controller *bbr.Controller
	registry   *wire.Registry
	encoder    collab.Encoder
	tracer     *metrics.FrameTracer

	conn     *transport.Conn
	listener *transport.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup

	bitrateHistoryMu sync.Mutex
	bitrateHistory   []float64
}

// reconfigureTransport adapts a transport.Conn + wire codec into
// bbr.Reconfigurer, so component C's emissions reach the peer as
// RECONFIGURE frames.
type reconfigureTransport struct {
	session *Session
}

func (t reconfigureTransport) EmitReconfigure(r bbr.Reconfigure) error {
	frame := wire.EncodeReconfigure(wire.Reconfigure{Bitrate: r.BitrateKbps})
	if t.session.conn == nil {
		return nil // control channel not yet established (e.g. in tests)
	}
	if err := t.session.conn.Send(frame); err != nil {
		t.session.logger.Warn("reconfigure send failed", zap.Error(err))
		return fmt.Errorf("send reconfigure: %w", err)
	}
	if t.session.cfg.PromMetrics != nil {
		t.session.cfg.PromMetrics.ReconfigureTotal.Inc()
	}
	if t.session.cfg.OtelMeter != nil {
		t.session.cfg.OtelMeter.RecordReconfigure(context.Background())
	}
	if err := t.session.encoder.Reconfigure(r.BitrateKbps); err != nil {
		t.session.logger.Warn("local encoder reconfigure failed", zap.Error(err))
		return fmt.Errorf("local encoder reconfigure: %w", err)
	}
	return nil
}

// New builds a Session with every component constructed but not yet
// started; call Run to bring up the goroutines.
func New(cfg Config, encoder collab.Encoder, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if encoder == nil {
		encoder = collab.NewLoggingEncoder(logger)
	}

	probe, err := rttprobe.NewChannel(cfg.ProbeChannelAddr, logger)
	if err != nil {
		return nil, fmt.Errorf("bind probe channel: %w", err)
	}

	var tracer *metrics.FrameTracer
	if cfg.GraphPath != "" {
		tracer, err = metrics.NewFrameTracer(cfg.GraphPath)
		if err != nil {
			return nil, err
		}
	}

	s := &Session{logger: logger, cfg: cfg, probe: probe, encoder: encoder, tracer: tracer}

	state := bbr.New(cfg.BitrateInitialKbps, reconfigureTransport{session: s})

	var frameTracer throughput.Tracer
	if tracer != nil {
		frameTracer = tracer
	}
	s.estimator = throughput.New(probe.Store(), frameTracer, state.BitrateKbps)
	s.controller = bbr.NewController(state, snapshotAdapter{s.estimator}, logger, s.onTick)
	s.registry = buildRegistry(s, logger)

	return s, nil
}

// snapshotAdapter converts throughput.Estimator.Snapshot into bbr.Snapshot.
type snapshotAdapter struct {
	estimator *throughput.Estimator
}

func (a snapshotAdapter) Snapshot() bbr.Snapshot {
	snap := a.estimator.Snapshot()
	return bbr.Snapshot{
		ThroughputBytesPerWindow: snap.ThroughputBytesPerWindow,
		RTPropUs:                 snap.RTPropUs,
		RTTUs:                    snap.RTTUs,
	}
}

func buildRegistry(s *Session, logger *zap.Logger) *wire.Registry {
	reg := wire.NewRegistry(logger)
	reg.SetHandler(wire.SubtypeShutdown, func(payload []byte) {
		logger.Info("shutdown received")
		if s.cancel != nil {
			s.cancel()
		}
	})
	reg.SetHandler(wire.SubtypePing, func(payload []byte) {
		p, err := wire.DecodePing(payload)
		if err != nil {
			logger.Warn("bad ping payload", zap.Error(err))
			return
		}
		logger.Debug("ping received", zap.Uint32("ping_id", p.PingID))
	})
	reg.SetHandler(wire.SubtypeNetReport, func(payload []byte) {
		r, err := wire.DecodeNetReport(payload)
		if err != nil {
			logger.Warn("bad netreport payload", zap.Error(err))
			return
		}
		logger.Debug("netreport received",
			zap.Uint32("framecount", r.FrameCount),
			zap.Uint32("pktloss", r.PktLoss))
	})
	reg.SetHandler(wire.SubtypeReconfigure, func(payload []byte) {
		r, err := wire.DecodeReconfigure(payload)
		if err != nil {
			logger.Warn("bad reconfigure payload", zap.Error(err))
			return
		}
		// The controller's own side applies bitrate changes through
		// reconfigureTransport directly; this handler serves the peer
		// that receives the RECONFIGURE frame and must relay it to its
		// own local encoder (§4.D, §5).
		if err := s.encoder.Reconfigure(r.Bitrate); err != nil {
			logger.Warn("local encoder reconfigure failed", zap.Error(err))
		}
	})
	return reg
}

func (s *Session) onTick(stage bbr.Stage, gain float64, bitrateKbps int32) {
	s.bitrateHistoryMu.Lock()
	s.bitrateHistory = append(s.bitrateHistory, float64(bitrateKbps))
	s.bitrateHistoryMu.Unlock()

	if s.cfg.Histograms != nil {
		s.cfg.Histograms.RecordBitrate(bitrateKbps)
		snap := s.estimator.Snapshot()
		s.cfg.Histograms.RecordSnapshot(snap.ThroughputBytesPerWindow, snap.RTPropUs, snap.RTTUs)
	}
	if s.cfg.PromMetrics != nil {
		s.cfg.PromMetrics.ObserveTick(int(stage), gain, bitrateKbps, s.controller.State().CyclesElapsed(), s.estimator.Snapshot())
	}
	if s.cfg.OtelMeter != nil {
		s.cfg.OtelMeter.RecordCycle(context.Background())
	}
}

// Estimator exposes the delivery-rate estimator so a media receive path
// (or collab.PacketSource, for demos) can feed it packet arrivals.
func (s *Session) Estimator() *throughput.Estimator { return s.estimator }

// Controller exposes the adaptation controller for tests and diagnostics.
func (s *Session) Controller() *bbr.Controller { return s.controller }

// ConnectControlChannel dials the peer's control transport. The sender
// side calls this; the peer side calls AcceptControlChannel instead.
func (s *Session) ConnectControlChannel(ctx context.Context) error {
	conn, err := transport.Dial(ctx, s.cfg.PeerControlAddr, s.logger)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// AcceptControlChannel listens for and accepts one inbound control
// connection (the peer side of the session).
func (s *Session) AcceptControlChannel(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.ControlAddr, s.cfg.CertPath, s.cfg.KeyPath, s.logger)
	if err != nil {
		return err
	}
	s.listener = ln
	conn, err := ln.Accept(ctx)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// ControlAddr returns the address the control listener actually bound to.
// Only meaningful after AcceptControlChannel's Listen call has returned.
func (s *Session) ControlAddr() string {
	if s.listener == nil {
		return s.cfg.ControlAddr
	}
	return s.listener.Addr()
}

// Run starts the probe channel, the control tick loop, the ping
// scheduler, and (if a control connection is established) the inbound
// dispatch loop. It blocks until ctx is cancelled, at which point every
// task exits at its next iteration boundary (§5 Cancellation & shutdown).
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.probe.Start(ctx, s.cfg.PeerProbeAddr, func() error {
			if s.conn == nil {
				return nil
			}
			return s.conn.Send(wire.EncodeInitProbeChannel())
		}); err != nil {
			s.logger.Error("probe channel exited", zap.Error(err))
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.controller.Run(ctx)
	}()

	if s.conn != nil {
		pinger := pingSender{conn: s.conn}
		sched := bbr.NewPingScheduler(pinger, func(err error) {
			s.logger.Warn("ping send failed", zap.Error(err))
		})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sched.Run(ctx)
		}()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.conn.ReceiveLoop(ctx, s.registry); err != nil {
				s.logger.Error("control channel receive loop exited", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	s.wg.Wait()
	return nil
}

type pingSender struct {
	conn *transport.Conn
}

func (p pingSender) SendPing(id uint32) error {
	now := time.Now()
	return p.conn.Send(wire.EncodePing(wire.Ping{
		PingID: id,
		TVSec:  int32(now.Unix()),
		TVUsec: int32(now.Nanosecond() / 1000),
	}))
}

// BitrateHistory returns a snapshot of the bitrate recorded on every
// control cycle, for the end-of-run report's ASCII trend graph.
func (s *Session) BitrateHistory() []float64 {
	s.bitrateHistoryMu.Lock()
	defer s.bitrateHistoryMu.Unlock()
	out := make([]float64, len(s.bitrateHistory))
	copy(out, s.bitrateHistory)
	return out
}

// Summary builds a metrics.RunSummary from the session's final state, for
// the end-of-run report.
func (s *Session) Summary(role string) metrics.RunSummary {
	state := s.controller.State()
	summary := metrics.RunSummary{
		Role:           role,
		FinalStage:     state.Stage().String(),
		FinalBitrate:   state.BitrateKbps(),
		CyclesElapsed:  state.CyclesElapsed(),
		BitrateHistory: s.BitrateHistory(),
	}
	if s.cfg.Histograms != nil {
		summary.RTT = s.cfg.Histograms.RTTStats()
		summary.RTProp = s.cfg.Histograms.RTPropStats()
		summary.Throughput = s.cfg.Histograms.ThroughputStats()
		summary.Bitrate = s.cfg.Histograms.BitrateStats()
	}
	return summary
}

// Close releases the probe socket, control connection, and trace file.
func (s *Session) Close() error {
	var firstErr error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.probe.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.tracer != nil {
		if err := s.tracer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
