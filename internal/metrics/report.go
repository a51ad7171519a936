package metrics

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
)

// RunSummary is the minimal set of facts a BBR session report needs; the
// caller (session) fills it in from the final controller/estimator/probe
// state at shutdown.
type RunSummary struct {
	Role           string
	FinalStage     string
	FinalBitrate   int32
	CyclesElapsed  uint32
	RTT            PercentileStats
	RTProp         PercentileStats
	Throughput     PercentileStats
	Bitrate        PercentileStats
	BitrateHistory []float64 // sampled once per control cycle, for the ASCII trend
}

// PrintReport renders RunSummary as a colored table plus an ASCII
// trend graph to w, mirroring the teacher's end-of-run console report.
func PrintReport(w io.Writer, s RunSummary) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "==========================================")
	color.New(color.FgCyan, color.Bold).Fprintln(w, "  bbr-streamctl session report")
	color.New(color.FgCyan, color.Bold).Fprintln(w, "==========================================")

	table := tablewriter.NewWriter(w)
	table.Header("metric", "p50", "p90", "p95", "p99")
	rows := [][]string{
		{"rtt_us", fmtF(s.RTT.P50), fmtF(s.RTT.P90), fmtF(s.RTT.P95), fmtF(s.RTT.P99)},
		{"rtprop_us", fmtF(s.RTProp.P50), fmtF(s.RTProp.P90), fmtF(s.RTProp.P95), fmtF(s.RTProp.P99)},
		{"throughput_bytes_per_window", fmtF(s.Throughput.P50), fmtF(s.Throughput.P90), fmtF(s.Throughput.P95), fmtF(s.Throughput.P99)},
		{"bitrate_kbps", fmtF(s.Bitrate.P50), fmtF(s.Bitrate.P90), fmtF(s.Bitrate.P95), fmtF(s.Bitrate.P99)},
	}
	for _, row := range rows {
		rowAny := make([]any, len(row))
		for i, v := range row {
			rowAny[i] = v
		}
		if err := table.Append(rowAny...); err != nil {
			fmt.Fprintf(w, "warning: failed to append report row: %v\n", err)
		}
	}
	if err := table.Render(); err != nil {
		fmt.Fprintf(w, "warning: failed to render report table: %v\n", err)
	}

	fmt.Fprintf(w, "\nrole: %s   final stage: %s   final bitrate: %d kbps   cycles elapsed: %d\n",
		s.Role, s.FinalStage, s.FinalBitrate, s.CyclesElapsed)

	if len(s.BitrateHistory) > 0 {
		fmt.Fprintln(w, "\nbitrate trend (kbps)")
		fmt.Fprintln(w, asciigraph.Plot(s.BitrateHistory,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption("bitrate_kbps"),
		))
	}
}

func fmtF(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

// PrintReportStdout is a convenience wrapper for PrintReport(os.Stdout, s).
func PrintReportStdout(s RunSummary) {
	PrintReport(os.Stdout, s)
}
