package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func writeTestTrace(t *testing.T, rows [][]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bbr_graph.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"rcvtime", "pktsize", "throughput", "rtt", "rtprop", "bitrate"}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	return path
}

func TestReadTraceParsesRows(t *testing.T) {
	path := writeTestTrace(t, [][]string{
		{"1000", "1200", "", "20000", "15000", "1000"},
		{"2000", "1200", "2400", "22000", "15000", "2000"},
	})

	rows, err := ReadTrace(path)
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].BitrateKbps != 2000 || rows[1].RTTUs != 22000 {
		t.Fatalf("row 1 = %+v, want bitrate=2000 rtt=22000", rows[1])
	}
}

func TestPlotTraceHandlesEmptyInput(t *testing.T) {
	if got := PlotTrace(nil, 70); got != "(trace is empty)" {
		t.Fatalf("PlotTrace(nil) = %q", got)
	}
}

func TestPlotTraceProducesNonEmptyGraphs(t *testing.T) {
	rows := []TraceRow{
		{RecvTimeUs: 1000, SizeBytes: 1200, RTTUs: 20000, RTPropUs: 15000, BitrateKbps: 1000},
		{RecvTimeUs: 2000, SizeBytes: 1200, RTTUs: 22000, RTPropUs: 15000, BitrateKbps: 2000},
		{RecvTimeUs: 3000, SizeBytes: 1200, RTTUs: 21000, RTPropUs: 15500, BitrateKbps: 2000},
	}
	out := PlotTrace(rows, 70)
	if out == "" {
		t.Fatal("PlotTrace returned empty string for non-empty rows")
	}
}
