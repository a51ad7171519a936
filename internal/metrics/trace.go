package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/twogc/bbr-streamctl/internal/throughput"
)

// FrameTracer satisfies throughput.Tracer: it journals each closed frame
// to bbr_graph.csv, the optional per-frame trace (§6 Persisted artifacts)
// with header "rcvtime, pktsize, throughput, rtt, rtprop, bitrate".
type FrameTracer struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewFrameTracer opens (or creates) path and writes the CSV header once.
func NewFrameTracer(path string) (*FrameTracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create graph trace %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"rcvtime", "pktsize", "throughput", "rtt", "rtprop", "bitrate"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write graph trace header: %w", err)
	}
	w.Flush()
	return &FrameTracer{f: f, w: w}, nil
}

// WriteFrame appends one row, satisfying throughput.Tracer. A write
// failure is returned to the caller, which per §4.B absorbs it — the
// trace is diagnostic, not load-bearing.
func (t *FrameTracer) WriteFrame(rec throughput.FrameRecord, bitrateKbps int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	row := []string{
		strconv.FormatInt(int64(rec.RecvTime), 10),
		strconv.FormatUint(uint64(rec.SizeBytes), 10),
		"", // throughput is a per-window value, not a per-frame one; this column is left blank on every row
		strconv.FormatUint(uint64(rec.RTTSnapshotUs), 10),
		strconv.FormatUint(uint64(rec.RTPropSnapshotUs), 10),
		strconv.FormatInt(int64(bitrateKbps), 10),
	}
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("write graph trace row: %w", err)
	}
	t.w.Flush()
	return t.w.Error()
}

// Close flushes and closes the underlying file.
func (t *FrameTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Flush()
	return t.f.Close()
}
