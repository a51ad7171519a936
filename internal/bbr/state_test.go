package bbr

import (
	"testing"

	"github.com/twogc/bbr-streamctl/internal/xtime"
)

// pastWarmup returns a State already in STARTUP with the warm-up counter
// past its threshold, matching the spec's worked scenarios (§8), which
// number cycles relative to the scenario rather than to session boot.
func pastWarmup(bitrate int32) *State {
	s := New(bitrate, nil)
	s.stage = Startup
	s.cyclesElapsed = warmupCycles
	return s
}

func TestScenario1StartupDoubling(t *testing.T) {
	s := New(1000, nil)
	s.cyclesElapsed = warmupCycles // next tick crosses warm-up and fires the WAITING->STARTUP transition
	now := xtime.Instant(0)

	snaps := []Snapshot{
		{ThroughputBytesPerWindow: 100, RTPropUs: 30000, RTTUs: 30000},
		{ThroughputBytesPerWindow: 210, RTPropUs: 30000, RTTUs: 30000},
		{ThroughputBytesPerWindow: 450, RTPropUs: 30000, RTTUs: 30000},
	}

	gain := s.Tick(now, snaps[0])
	if gain != GainMaintain {
		t.Fatalf("cycle 1 gain = %v, want GAIN_MAINTAIN (still WAITING this tick)", gain)
	}
	if s.Stage() != Startup {
		t.Fatalf("stage after cycle 1 = %v, want STARTUP", s.Stage())
	}
	if s.BitrateKbps() != 1000 {
		t.Fatalf("cycle 1 bitrate = %d, want unchanged 1000 (no-op)", s.BitrateKbps())
	}

	gain = s.Tick(now, snaps[1])
	if gain != GainIncrease {
		t.Fatalf("cycle 2 gain = %v, want GAIN_INCREASE", gain)
	}
	if s.BitrateKbps() != 2000 {
		t.Fatalf("cycle 2 bitrate = %d, want 2000", s.BitrateKbps())
	}

	gain = s.Tick(now, snaps[2])
	if gain != GainIncrease {
		t.Fatalf("cycle 3 gain = %v, want GAIN_INCREASE", gain)
	}
	if s.BitrateKbps() != 4000 {
		t.Fatalf("cycle 3 bitrate = %d, want 4000", s.BitrateKbps())
	}
}

func TestScenario2PlateauToStandby(t *testing.T) {
	s := pastWarmup(1000)
	now := xtime.Instant(0)

	s.Tick(now, Snapshot{ThroughputBytesPerWindow: 100, RTPropUs: 30000, RTTUs: 30000})
	s.Tick(now, Snapshot{ThroughputBytesPerWindow: 110, RTPropUs: 30000, RTTUs: 30000})
	gain := s.Tick(now, Snapshot{ThroughputBytesPerWindow: 115, RTPropUs: 30000, RTTUs: 30000})

	if s.Stage() != Standby {
		t.Fatalf("stage = %v, want STANDBY", s.Stage())
	}
	if gain != GainMaintain {
		t.Fatalf("gain = %v, want GAIN_MAINTAIN on the transition cycle", gain)
	}
}

func TestScenario3Probe(t *testing.T) {
	s := pastWarmup(5000)
	s.stage = Standby
	s.prevProbeAt = xtime.Instant(0)

	now := xtime.Instant(0) + xtime.FromStd(ProbeInterval) + 1
	gain := s.Tick(now, Snapshot{ThroughputBytesPerWindow: 1000, RTPropUs: 20000, RTTUs: 21000})

	if gain != GainProbe {
		t.Fatalf("gain = %v, want GAIN_PROBE", gain)
	}
	if s.BitrateKbps() != 6250 {
		t.Fatalf("bitrate = %d, want 6250", s.BitrateKbps())
	}
	if s.prevProbeAt != now {
		t.Fatalf("prevProbeAt not reset to now")
	}
}

func TestScenario4QueueReaction(t *testing.T) {
	s := pastWarmup(5000)
	s.stage = Standby

	gain := s.Tick(xtime.Instant(0), Snapshot{ThroughputBytesPerWindow: 1000, RTPropUs: 20000, RTTUs: 28000})

	if gain != GainStandby {
		t.Fatalf("gain = %v, want GAIN_STANDBY", gain)
	}
	if s.BitrateKbps() != 3750 {
		t.Fatalf("bitrate = %d, want 3750", s.BitrateKbps())
	}
}

func TestPlateauDetectionWithinOneCycle(t *testing.T) {
	s := pastWarmup(1000)
	now := xtime.Instant(0)

	s.Tick(now, Snapshot{ThroughputBytesPerWindow: 1000, RTPropUs: 10000, RTTUs: 10000})
	s.Tick(now, Snapshot{ThroughputBytesPerWindow: 1000, RTPropUs: 10000, RTTUs: 10000})
	s.Tick(now, Snapshot{ThroughputBytesPerWindow: 1000, RTPropUs: 10000, RTTUs: 10000})

	if s.Stage() != Standby {
		t.Fatalf("stage = %v, want STANDBY after a flat plateau", s.Stage())
	}
}

func TestQueueDetectionKeepsStandbyAndStandbyGain(t *testing.T) {
	s := pastWarmup(5000)
	s.stage = Standby

	gain := s.Tick(xtime.Instant(0), Snapshot{ThroughputBytesPerWindow: 500, RTPropUs: 20000, RTTUs: 30000})
	if s.Stage() != Standby {
		t.Fatalf("stage = %v, want STANDBY", s.Stage())
	}
	if gain != GainStandby {
		t.Fatalf("gain = %v, want GAIN_STANDBY", gain)
	}
}

func TestWarmupSuppressesOutput(t *testing.T) {
	s := New(1000, nil)
	s.stage = Startup

	for i := 0; i < warmupCycles; i++ {
		s.Tick(xtime.Instant(0), Snapshot{ThroughputBytesPerWindow: 100, RTPropUs: 10000, RTTUs: 10000})
	}
	if s.BitrateKbps() != 1000 {
		t.Fatalf("bitrate = %d, want unchanged 1000 during warm-up", s.BitrateKbps())
	}
}

func TestUnavailableRTTReturnsMaintainWithoutMutatingHistory(t *testing.T) {
	s := pastWarmup(1000)
	gain := s.Tick(xtime.Instant(0), Snapshot{RTPropUs: UintMax})
	if gain != GainMaintain {
		t.Fatalf("gain = %v, want GAIN_MAINTAIN when rtprop unavailable", gain)
	}
	if s.CyclesElapsed() != warmupCycles {
		t.Fatalf("cyclesElapsed incremented despite missing RTT signal")
	}
}

func TestWaitingTransitionsToStartupOnceThroughputNonZero(t *testing.T) {
	s := New(1000, nil)
	for i := 0; i < warmupCycles; i++ {
		s.Tick(xtime.Instant(0), Snapshot{ThroughputBytesPerWindow: 0, RTPropUs: 10000, RTTUs: 10000})
	}
	if s.Stage() != Waiting {
		t.Fatalf("stage = %v, want WAITING while throughput is zero", s.Stage())
	}
	s.Tick(xtime.Instant(0), Snapshot{ThroughputBytesPerWindow: 100, RTPropUs: 10000, RTTUs: 10000})
	if s.Stage() != Startup {
		t.Fatalf("stage = %v, want STARTUP once throughput is non-zero past warm-up", s.Stage())
	}
}

type recordingReconfigurer struct {
	calls []Reconfigure
}

func (r *recordingReconfigurer) EmitReconfigure(rc Reconfigure) error {
	r.calls = append(r.calls, rc)
	return nil
}

func TestReconfigureEmittedOnMaterialGainChange(t *testing.T) {
	rec := &recordingReconfigurer{}
	s := New(1000, rec)
	s.stage = Startup
	s.cyclesElapsed = warmupCycles

	s.Tick(xtime.Instant(0), Snapshot{ThroughputBytesPerWindow: 100, RTPropUs: 10000, RTTUs: 10000})
	if len(rec.calls) == 0 {
		t.Fatal("expected a reconfigure emission on a GAIN_INCREASE cycle")
	}
	if rec.calls[0].BitrateKbps != 2000 {
		t.Fatalf("emitted bitrate = %d, want 2000", rec.calls[0].BitrateKbps)
	}
}
