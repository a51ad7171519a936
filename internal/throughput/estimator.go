package throughput

import (
	"sync/atomic"
	"time"

	"github.com/twogc/bbr-streamctl/internal/xtime"
)

// ReportPeriod is the cadence at which a new ReportSnapshot is published.
const ReportPeriod = 500 * time.Millisecond

// CycleWindow bounds how far back the throughput sum looks.
const CycleWindow = 800 * time.Millisecond

// rttSnapshotWindow is the short window used for the per-frame RTT
// snapshot (rtt_max_recent's window argument). The spec leaves this
// implementation-defined ("by calling A's queries"); REPORT_PERIOD is
// chosen so the snapshot reflects queueing delay within roughly one
// reporting interval — see DESIGN.md.
const rttSnapshotWindow = ReportPeriod

// RTTSource is the subset of component A's interface the estimator needs:
// the two windowed RTT queries.
type RTTSource interface {
	RtProp() uint32
	RttMaxRecent(window time.Duration) uint32
}

// ReportSnapshot is the value-type triple published atomically every
// ReportPeriod (§3).
type ReportSnapshot struct {
	ThroughputBytesPerWindow uint32
	RTPropUs                 uint32
	RTTUs                    uint32
}

// Tracer journals closed frames to an optional CSV trace, when graphing is
// enabled (§4.B step 2, §6 Persisted artifacts).
type Tracer interface {
	WriteFrame(rec FrameRecord, bitrateKbps int32) error
}

// Estimator is component B: the sole writer of the FrameRing and the
// published ReportSnapshot. Its OnPacket method is invoked from the media
// receive path and must not be called concurrently (§5).
type Estimator struct {
	ring FrameRing

	hasLastTS bool
	lastTS    uint32

	hasAnyFrame  bool
	lastReportAt xtime.Instant

	rtt    RTTSource
	tracer Tracer
	// bitrate is read only for the optional CSV trace row; it has no
	// bearing on the estimator's own computation.
	bitrateKbps func() int32

	snapshot atomic.Pointer[ReportSnapshot]
}

// New creates an Estimator reading RTT signals from rtt. tracer may be nil
// to disable CSV journaling; bitrateKbps may be nil, in which case trace
// rows carry a bitrate of 0.
func New(rtt RTTSource, tracer Tracer, bitrateKbps func() int32) *Estimator {
	e := &Estimator{rtt: rtt, tracer: tracer, bitrateKbps: bitrateKbps}
	e.snapshot.Store(&ReportSnapshot{})
	return e
}

// Snapshot returns the most recently published ReportSnapshot. It is safe
// to call concurrently with OnPacket.
func (e *Estimator) Snapshot() ReportSnapshot {
	return *e.snapshot.Load()
}

// OnPacket is the media arrival callback (§4.B). ssrc and seq are accepted
// for interface compatibility with a real media receiver but are not used
// by the simplified per-sender-timestamp frame grouping the spec
// prescribes.
func (e *Estimator) OnPacket(ssrc uint32, seq uint32, recvTime xtime.Instant, senderTS uint32, size uint32) {
	if e.hasLastTS && senderTS == e.lastTS {
		if cur, ok := e.ring.Current(); ok {
			cur.SizeBytes = addSizeSaturating(cur.SizeBytes, size)
		}
		return
	}

	if prev, ok := e.ring.Current(); ok && e.tracer != nil {
		var bitrate int32
		if e.bitrateKbps != nil {
			bitrate = e.bitrateKbps()
		}
		_ = e.tracer.WriteFrame(*prev, bitrate) // transient I/O error: discarded; the trace is diagnostic only
	}

	e.hasLastTS = true
	e.lastTS = senderTS

	prevRec, hadPrev := e.ring.Current()
	rtprop := e.rtt.RtProp()
	rtt := e.rtt.RttMaxRecent(rttSnapshotWindow)

	rec := e.ring.Reserve()
	rec.RecvTime = recvTime
	rec.SizeBytes = size
	rec.RTPropSnapshotUs = rtprop
	rec.RTTSnapshotUs = rtt
	if hadPrev {
		rec.ElapsedUs = uint32(recvTime.Sub(prevRec.RecvTime))
	} else {
		rec.ElapsedUs = 0
	}
	e.ring.Advance()

	if !e.hasAnyFrame {
		// First packet: no throughput published yet, per §4.B edge cases.
		e.hasAnyFrame = true
		e.lastReportAt = recvTime
		return
	}

	if recvTime.Sub(e.lastReportAt) >= xtime.FromStd(ReportPeriod) {
		e.ring.AdvanceStartUntil(recvTime - xtime.Instant(xtime.FromStd(CycleWindow)))
		throughput := e.ring.SumSizeBytes()

		snap := &ReportSnapshot{ThroughputBytesPerWindow: throughput}
		if head, ok := e.ring.Current(); ok {
			snap.RTPropUs = head.RTPropSnapshotUs
			snap.RTTUs = head.RTTSnapshotUs
		}
		e.snapshot.Store(snap)
		e.lastReportAt = recvTime
	}
}

// Ring exposes the underlying FrameRing for tests and diagnostics.
func (e *Estimator) Ring() *FrameRing {
	return &e.ring
}
