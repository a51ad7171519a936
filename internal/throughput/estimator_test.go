package throughput

import (
	"testing"
	"time"

	"github.com/twogc/bbr-streamctl/internal/xtime"
)

type fakeRTT struct {
	rtprop uint32
	rtt    uint32
}

func (f fakeRTT) RtProp() uint32                            { return f.rtprop }
func (f fakeRTT) RttMaxRecent(window time.Duration) uint32 { return f.rtt }

func TestFirstPacketPublishesNoThroughput(t *testing.T) {
	e := New(fakeRTT{rtprop: 30000, rtt: 31000}, nil, nil)
	e.OnPacket(1, 1, xtime.Instant(0), 100, 1000)

	snap := e.Snapshot()
	if snap.ThroughputBytesPerWindow != 0 {
		t.Fatalf("throughput = %d, want 0 before first report", snap.ThroughputBytesPerWindow)
	}
	if e.Ring().Len() != 1 {
		t.Fatalf("ring len = %d, want 1", e.Ring().Len())
	}
}

func TestSameSenderTimestampAccumulatesIntoSameFrame(t *testing.T) {
	e := New(fakeRTT{}, nil, nil)
	e.OnPacket(1, 1, xtime.Instant(0), 42, 500)
	e.OnPacket(1, 2, xtime.Instant(1000), 42, 300)

	if e.Ring().Len() != 1 {
		t.Fatalf("ring len = %d, want 1 (same sender timestamp)", e.Ring().Len())
	}
	rec, ok := e.Ring().Current()
	if !ok {
		t.Fatal("expected a current frame")
	}
	if rec.SizeBytes != 800 {
		t.Fatalf("size = %d, want 800", rec.SizeBytes)
	}
}

func TestDifferentSenderTimestampStartsNewFrame(t *testing.T) {
	e := New(fakeRTT{}, nil, nil)
	e.OnPacket(1, 1, xtime.Instant(0), 1, 500)
	e.OnPacket(1, 2, xtime.Instant(5000), 2, 300)

	if e.Ring().Len() != 2 {
		t.Fatalf("ring len = %d, want 2", e.Ring().Len())
	}
	rec, _ := e.Ring().Current()
	if rec.ElapsedUs != 5000 {
		t.Fatalf("elapsed = %d, want 5000", rec.ElapsedUs)
	}
}

func TestReportPublishedAfterReportPeriod(t *testing.T) {
	e := New(fakeRTT{rtprop: 20000, rtt: 25000}, nil, nil)

	now := xtime.Instant(0)
	e.OnPacket(1, 1, now, 1, 1000) // first packet: no report

	now += xtime.Instant(xtime.FromStd(ReportPeriod)) + 1
	e.OnPacket(1, 2, now, 2, 2000) // second frame, crosses report period

	snap := e.Snapshot()
	if snap.ThroughputBytesPerWindow == 0 {
		t.Fatal("expected a published throughput after report period elapsed")
	}
	if snap.RTPropUs != 20000 || snap.RTTUs != 25000 {
		t.Fatalf("snapshot RTT fields = %+v, want rtprop=20000 rtt=25000", snap)
	}
}

func TestOldFramesTrimmedByCycleWindow(t *testing.T) {
	e := New(fakeRTT{}, nil, nil)

	now := xtime.Instant(0)
	e.OnPacket(1, 1, now, 1, 1000)

	// A frame well outside CycleWindow relative to the eventual report.
	now += xtime.Instant(xtime.FromStd(CycleWindow)) + xtime.Instant(xtime.FromStd(ReportPeriod)) + 10
	e.OnPacket(1, 2, now, 2, 2000)

	snap := e.Snapshot()
	// Only the most recent frame (2000 bytes) should remain in-window;
	// the first (1000 bytes) is older than CycleWindow relative to `now`.
	if snap.ThroughputBytesPerWindow != 2000 {
		t.Fatalf("throughput = %d, want 2000 (oldest frame trimmed)", snap.ThroughputBytesPerWindow)
	}
}

func TestSizeBytesSaturatesAtUint32Max(t *testing.T) {
	e := New(fakeRTT{}, nil, nil)
	e.OnPacket(1, 1, xtime.Instant(0), 1, ^uint32(0)-10)
	e.OnPacket(1, 2, xtime.Instant(1), 1, 100) // same timestamp, accumulates

	rec, _ := e.Ring().Current()
	if rec.SizeBytes != ^uint32(0) {
		t.Fatalf("size = %d, want saturated uint32 max", rec.SizeBytes)
	}
}
