// Package bbr implements component C: the adaptation state machine. On a
// fixed cycle it reads the throughput/RTT signals published by the
// delivery-rate estimator, runs the three-state BBR variant, and emits a
// clamped bitrate through a reconfigure callback.
package bbr

import (
	"time"

	"github.com/twogc/bbr-streamctl/internal/xtime"
)

// Stage is one of the three states the controller cycles through.
type Stage int

const (
	Waiting Stage = iota
	Startup
	Standby
)

func (s Stage) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Startup:
		return "STARTUP"
	case Standby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}

const (
	CyclePeriod    = 800 * time.Millisecond
	ProbeInterval  = 5 * time.Second
	QueueThreshold = 5 * time.Millisecond
	PlateauGrowth  = 1.25

	GainMaintain = 1.0
	GainIncrease = 2.0
	GainDrain    = 0.5
	GainStandby  = 0.75
	GainProbe    = 1.25

	BitrateMin        int32 = 200
	BitrateMax        int32 = 30000
	BitrateInitDefault int32 = 1000

	// warmupCycles is the number of initial ticks whose output is
	// suppressed while signals settle (§4.C).
	warmupCycles = 6

	// UintMax mirrors rttprobe.UintMax; the state machine compares against
	// it directly rather than importing rttprobe, to keep the package
	// dependency graph one-directional (rttprobe/throughput feed bbr).
	UintMax uint32 = 0xFFFFFFFF
)

// Snapshot is the subset of throughput.ReportSnapshot the state machine
// consumes, named locally so this package has no import-time dependency on
// the throughput package's exact shape.
type Snapshot struct {
	ThroughputBytesPerWindow uint32
	RTPropUs                 uint32
	RTTUs                    uint32
}

// Reconfigure is emitted whenever the gain materially changes the bitrate.
type Reconfigure struct {
	BitrateKbps int32
}

// Reconfigurer is component D's emission surface, as seen by C.
type Reconfigurer interface {
	EmitReconfigure(r Reconfigure) error
}

// State is component C's BbrState, a long-lived singleton for the life of
// the session.
type State struct {
	stage Stage

	prevThroughput0 uint32
	prevThroughput1 uint32
	hasHistory0     bool
	hasHistory1     bool

	prevProbeAt xtime.Instant

	bitrateKbps int32
	lastGain    float64

	cyclesElapsed uint32

	out Reconfigurer
}

// New creates a controller starting in WAITING with the given initial
// bitrate (clamped). out may be nil to disable emission (useful in tests
// that only assert on the computed gain/stage).
func New(initialBitrateKbps int32, out Reconfigurer) *State {
	if initialBitrateKbps <= 0 {
		initialBitrateKbps = BitrateInitDefault
	}
	return &State{
		stage:       Waiting,
		bitrateKbps: clampBitrate(initialBitrateKbps),
		out:         out,
	}
}

func clampBitrate(v int32) int32 {
	if v < BitrateMin {
		return BitrateMin
	}
	if v > BitrateMax {
		return BitrateMax
	}
	return v
}

// Stage returns the controller's current stage.
func (s *State) Stage() Stage { return s.stage }

// BitrateKbps returns the controller's current clamped bitrate.
func (s *State) BitrateKbps() int32 { return s.bitrateKbps }

// CyclesElapsed returns the warm-up counter.
func (s *State) CyclesElapsed() uint32 { return s.cyclesElapsed }

// LastGain returns the gain computed on the most recent tick.
func (s *State) LastGain() float64 { return s.lastGain }

// Tick runs one control cycle (§4.C "Per-cycle actions"). now is the
// instant the tick fires; it drives PROBE_INTERVAL bookkeeping.
func (s *State) Tick(now xtime.Instant, snap Snapshot) float64 {
	if snap.RTPropUs == UintMax {
		s.lastGain = GainMaintain
		return GainMaintain
	}

	s.cyclesElapsed++

	gain := s.computeGain(now, snap)
	s.lastGain = gain

	s.prevThroughput1 = s.prevThroughput0
	s.hasHistory1 = s.hasHistory0
	s.prevThroughput0 = snap.ThroughputBytesPerWindow
	s.hasHistory0 = true

	if s.cyclesElapsed <= warmupCycles {
		return gain
	}

	if absFloat(gain-1.0) > 0.1 {
		newBitrate := clampBitrate(int32(float64(s.bitrateKbps) * gain))
		s.bitrateKbps = newBitrate
		if s.out != nil {
			if err := s.out.EmitReconfigure(Reconfigure{BitrateKbps: newBitrate}); err != nil {
				// Emission failures are logged by the caller's transport;
				// state is not rolled back (§4.C Failure semantics).
				_ = err
			}
		}
	}

	return gain
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func queueDelayUs(snap Snapshot) int64 {
	return int64(snap.RTTUs) - int64(snap.RTPropUs)
}

func (s *State) computeGain(now xtime.Instant, snap Snapshot) float64 {
	queueUs := queueDelayUs(snap)
	queueDetected := queueUs > int64(QueueThreshold.Microseconds())

	switch s.stage {
	case Waiting:
		if snap.ThroughputBytesPerWindow != 0 && s.cyclesElapsed > warmupCycles {
			s.stage = Startup
		}
		return GainMaintain

	case Startup:
		gain := GainIncrease
		if queueDetected {
			gain = GainDrain
		}

		plateauReached := false
		if s.hasHistory0 && s.hasHistory1 {
			minPrev := s.prevThroughput0
			if s.prevThroughput1 < minPrev {
				minPrev = s.prevThroughput1
			}
			plateau := float64(minPrev) * PlateauGrowth
			if plateau > float64(snap.ThroughputBytesPerWindow) {
				plateauReached = true
			}
		}

		if plateauReached || queueDetected || s.bitrateKbps == BitrateMax {
			s.stage = Standby
			s.prevProbeAt = now
			if !queueDetected {
				// The newly-entered STANDBY stage governs this cycle's
				// emission when the transition wasn't queue-triggered; with
				// prev_probe_at just reset to now, that reduces to
				// GAIN_MAINTAIN (§8 Scenario 2).
				return s.computeGain(now, snap)
			}
		}
		return gain

	case Standby:
		if queueDetected {
			s.prevProbeAt = now
			return GainStandby
		}
		if now.Sub(s.prevProbeAt) > xtime.FromStd(ProbeInterval) && s.bitrateKbps < BitrateMax {
			s.prevProbeAt = now
			return GainProbe
		}
		return GainMaintain
	}

	return GainMaintain
}
