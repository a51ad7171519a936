package metrics

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// BBRHistograms tracks RTT and throughput percentiles for the end-of-run
// report. It never feeds back into the controller (§9 Non-goals): it is
// observability-only, recording the same samples B and A already compute.
type BBRHistograms struct {
	mu sync.Mutex

	rttUs        *hdrhistogram.Histogram
	rtpropUs     *hdrhistogram.Histogram
	throughput   *hdrhistogram.Histogram
	bitrateKbps  *hdrhistogram.Histogram
}

// NewBBRHistograms allocates one histogram per tracked signal, sized to
// the ranges those signals can plausibly take.
func NewBBRHistograms() *BBRHistograms {
	return &BBRHistograms{
		rttUs:       hdrhistogram.New(1, 10_000_000, 3),    // 1us .. 10s
		rtpropUs:    hdrhistogram.New(1, 10_000_000, 3),    // 1us .. 10s
		throughput:  hdrhistogram.New(1, 1_000_000_000, 3), // 1B .. 1GB/window
		bitrateKbps: hdrhistogram.New(1, 30_000, 3),        // BITRATE_MIN..MAX
	}
}

// RecordSnapshot records one ReportSnapshot's worth of samples.
func (h *BBRHistograms) RecordSnapshot(throughputBytes, rtpropUs, rttUs uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rtpropUs != 0 && rtpropUs != ^uint32(0) {
		_ = h.rtpropUs.RecordValue(int64(rtpropUs))
	}
	if rttUs != 0 {
		_ = h.rttUs.RecordValue(int64(rttUs))
	}
	if throughputBytes != 0 {
		_ = h.throughput.RecordValue(int64(throughputBytes))
	}
}

// RecordBitrate records one controller tick's resulting bitrate.
func (h *BBRHistograms) RecordBitrate(bitrateKbps int32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if bitrateKbps > 0 {
		_ = h.bitrateKbps.RecordValue(int64(bitrateKbps))
	}
}

// PercentileStats is a small table of commonly reported quantiles.
type PercentileStats struct {
	P50, P90, P95, P99 float64
}

func quantiles(hist *hdrhistogram.Histogram) PercentileStats {
	return PercentileStats{
		P50: float64(hist.ValueAtQuantile(50)),
		P90: float64(hist.ValueAtQuantile(90)),
		P95: float64(hist.ValueAtQuantile(95)),
		P99: float64(hist.ValueAtQuantile(99)),
	}
}

// RTTStats returns the RTT histogram's percentiles, in microseconds.
func (h *BBRHistograms) RTTStats() PercentileStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return quantiles(h.rttUs)
}

// RTPropStats returns the RTProp histogram's percentiles, in microseconds.
func (h *BBRHistograms) RTPropStats() PercentileStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return quantiles(h.rtpropUs)
}

// ThroughputStats returns the throughput histogram's percentiles, in
// bytes per cycle window.
func (h *BBRHistograms) ThroughputStats() PercentileStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return quantiles(h.throughput)
}

// BitrateStats returns the bitrate histogram's percentiles, in kbps.
func (h *BBRHistograms) BitrateStats() PercentileStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return quantiles(h.bitrateKbps)
}
