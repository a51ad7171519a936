package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/guptarohit/asciigraph"
)

// TraceRow is one parsed row of a bbr_graph.csv file.
type TraceRow struct {
	RecvTimeUs   int64
	SizeBytes    uint64
	RTTUs        uint64
	RTPropUs     uint64
	BitrateKbps  int64
}

// ReadTrace parses a CSV file written by FrameTracer. The throughput
// column, which FrameTracer leaves blank, is ignored here;
// bitrate/rtt/rtprop/size are what the graph subcommand plots.
func ReadTrace(path string) ([]TraceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	rows := make([]TraceRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 6 {
			continue
		}
		row := TraceRow{}
		row.RecvTimeUs, _ = strconv.ParseInt(rec[0], 10, 64)
		size, _ := strconv.ParseUint(rec[1], 10, 64)
		row.SizeBytes = size
		rtt, _ := strconv.ParseUint(rec[3], 10, 64)
		row.RTTUs = rtt
		rtprop, _ := strconv.ParseUint(rec[4], 10, 64)
		row.RTPropUs = rtprop
		bitrate, _ := strconv.ParseInt(rec[5], 10, 64)
		row.BitrateKbps = bitrate
		rows = append(rows, row)
	}
	return rows, nil
}

// plotSeries down-samples data to at most maxPoints before handing it to
// asciigraph, mirroring the teacher's asciigraphPlot sampling.
func plotSeries(data []float64, caption string, width int) string {
	if len(data) == 0 {
		return ""
	}
	if width <= 0 {
		width = 70
	}
	maxPoints := width
	step := 1
	if len(data) > maxPoints {
		step = (len(data) + maxPoints - 1) / maxPoints
	}
	sampled := make([]float64, 0, maxPoints)
	for i := 0; i < len(data); i += step {
		sampled = append(sampled, data[i])
	}
	return asciigraph.Plot(sampled,
		asciigraph.Height(10),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// PlotTrace renders bitrate/RTT/RTProp trend graphs from a parsed trace,
// sized to termWidth (0 falls back to 70 columns).
func PlotTrace(rows []TraceRow, termWidth int) string {
	if len(rows) == 0 {
		return "(trace is empty)"
	}

	bitrate := make([]float64, len(rows))
	rtt := make([]float64, len(rows))
	rtprop := make([]float64, len(rows))
	for i, r := range rows {
		bitrate[i] = float64(r.BitrateKbps)
		rtt[i] = float64(r.RTTUs)
		rtprop[i] = float64(r.RTPropUs)
	}

	out := plotSeries(bitrate, "bitrate (kbps)", termWidth) + "\n\n"
	out += plotSeries(rtt, "rtt_max_recent (us)", termWidth) + "\n\n"
	out += plotSeries(rtprop, "rt_prop (us)", termWidth)
	return out
}
